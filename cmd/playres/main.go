// playres resolves one media item into a playable source against the
// configured provider and prints the resolution as JSON. With -listen it
// also serves /metrics and /healthz for scrape-based inspection while a
// soak or debugging run is in progress.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"playres/internal/config"
	"playres/internal/log"
	"playres/internal/manifest"
	"playres/internal/manifest/client"
	"playres/internal/session"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type resolution struct {
	SessionID string `json:"sessionId"`
	MediaID   string `json:"mediaId"`
	Mode      string `json:"mode"`
	QualityID int    `json:"qualityId"`
	AudioID   int    `json:"audioId,omitempty"`
	Codec     string `json:"codec"`
	Reason    string `json:"reason"`
	Bypassed  bool   `json:"bypassed"`
	VideoOnly bool   `json:"videoOnly"`
	ActiveCDN string `json:"activeCdn"`

	AvailableQualityIDs []int `json:"availableQualityIds"`
	AvailableAudioIDs   []int `json:"availableAudioIds,omitempty"`
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	mediaID := flag.String("media", "", "media id to resolve")
	quality := flag.Int("quality", 0, "desired quality id (0 = best available)")
	audioKind := flag.String("audio-kind", "", "desired audio kind: normal, dolby or flac")
	audioID := flag.Int("audio", 0, "desired audio track id")
	dolbyVision := flag.Bool("dolby-vision", false, "device can decode Dolby Vision")
	listen := flag.String("listen", "", "also serve /metrics and /healthz on this address")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Service: "playres"})
	base := log.Base()
	base.Debug().Str("version", version).Str("commit", commit).Msg("starting")
	logger := log.WithComponent("main")

	if *mediaID == "" {
		fmt.Fprintln(os.Stderr, "usage: playres -media <id> [-config file] [flags]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listen != "" {
		go serveDiagnostics(*listen)
	}

	provider := client.New(cfg.Provider.BaseURL,
		client.WithBlockedCodes(cfg.Provider.BlockedCodes),
		client.WithHTTPClient(&http.Client{Timeout: cfg.Provider.RequestTimeout}),
	)
	sess := session.New(&cfg, provider, session.WithDolbyVisionDecode(*dolbyVision))

	res, err := sess.Load(ctx, session.LoadRequest{
		MediaID:          *mediaID,
		DesiredQualityID: *quality,
		DesiredAudioKind: manifest.AudioKind(*audioKind),
		DesiredAudioID:   *audioID,
	})
	if err != nil {
		logger.Error().Err(err).Str(log.FieldMediaID, *mediaID).Msg("resolution failed")
		os.Exit(1)
	}

	out := resolution{
		SessionID:           sess.ID(),
		MediaID:             *mediaID,
		Mode:                string(res.Selection.Playable.Mode),
		QualityID:           res.Selection.ResolvedQualityID,
		AudioID:             res.Selection.ResolvedAudioID,
		Codec:               res.Selection.Playable.Video.Codec,
		Reason:              string(res.Selection.Reason),
		Bypassed:            res.Bypassed,
		VideoOnly:           res.VideoOnly,
		ActiveCDN:           res.ActiveCDN,
		AvailableQualityIDs: res.Selection.AvailableQualityIDs,
		AvailableAudioIDs:   res.Selection.AvailableAudioIDs,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error().Err(err).Msg("encoding resolution")
		os.Exit(1)
	}

	if *listen != "" {
		logger.Info().Str("addr", *listen).Msg("holding for diagnostics, ctrl-c to exit")
		<-ctx.Done()
	}
}

func serveDiagnostics(addr string) {
	logger := log.WithComponent("diagnostics")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info().Str("addr", addr).Msg("diagnostics listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("diagnostics server failed")
	}
}
