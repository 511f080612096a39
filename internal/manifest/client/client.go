// Package client implements the provider HTTP client: manifest fetch with
// its bypass variant, overlay metadata and segments, skip ranges and the
// resume point. All calls take a context and rely on the injected
// http.Client's timeout; the package never retries on its own.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"playres/internal/log"
	"playres/internal/manifest"
)

// Client talks to the provider API.
type Client struct {
	base    string
	http    *http.Client
	blocked map[int]struct{}
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client (tests, transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBlockedCodes sets the provider codes treated as a risk-control block.
func WithBlockedCodes(codes []int) Option {
	return func(c *Client) {
		c.blocked = make(map[int]struct{}, len(codes))
		for _, code := range codes {
			c.blocked[code] = struct{}{}
		}
	}
}

// New returns a provider client for the given base URL.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		blocked: map[int]struct{}{-352: {}, -412: {}},
		logger:  log.WithComponent("provider"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MediaRequest identifies one manifest fetch.
type MediaRequest struct {
	MediaID     string
	QualityHint int
	Flags       FormatFlags
}

// FormatFlags select the request variant.
type FormatFlags struct {
	// MostCompatible requests a lower quality ceiling and single-file
	// formats; used for the caller-level compatibility retry.
	MostCompatible bool
	// BestEffort is the bypass variant: a no-auth posture the provider
	// serves when the primary request was blocked.
	BestEffort bool
	// BypassToken is the one-time token captured from the block response.
	BypassToken string
}

// envelope is the provider response wrapper shared by every endpoint.
type envelope struct {
	Code        int             `json:"code"`
	Message     string          `json:"message"`
	BypassToken string          `json:"bypassToken"`
	Data        json.RawMessage `json:"data"`
}

// FetchManifest requests the delivery manifest for one media item.
func (c *Client) FetchManifest(ctx context.Context, req MediaRequest) (*manifest.Manifest, error) {
	q := url.Values{}
	q.Set("mediaId", req.MediaID)
	if req.QualityHint > 0 {
		q.Set("qualityHint", strconv.Itoa(req.QualityHint))
	}
	if req.Flags.MostCompatible {
		q.Set("compat", "1")
	}
	if req.Flags.BestEffort {
		q.Set("bestEffort", "1")
	}
	if req.Flags.BypassToken != "" {
		q.Set("bypassToken", req.Flags.BypassToken)
	}

	var doc manifest.Document
	if err := c.getJSON(ctx, "manifest", "/playback/manifest", q, &doc); err != nil {
		return nil, err
	}
	m := manifest.FromDocument(doc)
	c.logger.Debug().
		Str(log.FieldMediaID, req.MediaID).
		Int("video_tracks", len(m.VideoTracks)).
		Int("progressive_tracks", len(m.ProgressiveFallback)).
		Bool("best_effort", req.Flags.BestEffort).
		Msg("manifest fetched")
	return m, nil
}

// FetchOverlayMeta requests the overlay stream metadata for one media item.
func (c *Client) FetchOverlayMeta(ctx context.Context, mediaID string) (manifest.OverlayMeta, error) {
	q := url.Values{}
	q.Set("mediaId", mediaID)
	var doc manifest.OverlayMetaDocument
	if err := c.getJSON(ctx, "overlay_meta", "/overlay/meta", q, &doc); err != nil {
		return manifest.OverlayMeta{}, err
	}
	return manifest.OverlayMetaFromDocument(doc), nil
}

// FetchOverlaySegment requests one time-indexed overlay segment.
func (c *Client) FetchOverlaySegment(ctx context.Context, mediaID string, index int) ([]manifest.OverlayItem, error) {
	q := url.Values{}
	q.Set("mediaId", mediaID)
	q.Set("segment", strconv.Itoa(index))
	var docs []manifest.OverlayItemDocument
	if err := c.getJSON(ctx, "overlay_segment", "/overlay/segment", q, &docs); err != nil {
		return nil, err
	}
	return manifest.OverlayItemsFromDocuments(docs), nil
}

// FetchSkipSegments requests the skippable ranges for one media item.
func (c *Client) FetchSkipSegments(ctx context.Context, mediaID string) ([]manifest.SkipSegment, error) {
	q := url.Values{}
	q.Set("mediaId", mediaID)
	var docs []manifest.SkipSegmentDocument
	if err := c.getJSON(ctx, "skip_segments", "/playback/skip", q, &docs); err != nil {
		return nil, err
	}
	return manifest.SkipSegmentsFromDocuments(docs), nil
}

// FetchResumePoint requests the stored resume position for one media item.
func (c *Client) FetchResumePoint(ctx context.Context, mediaID string) (manifest.ResumePoint, error) {
	q := url.Values{}
	q.Set("mediaId", mediaID)
	var doc struct {
		PositionMs int64 `json:"positionMs"`
	}
	if err := c.getJSON(ctx, "resume_point", "/playback/resume", q, &doc); err != nil {
		return manifest.ResumePoint{}, err
	}
	return manifest.ResumePoint{PositionMs: doc.PositionMs}, nil
}

func (c *Client) getJSON(ctx context.Context, operation, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &ProviderError{Sentinel: ErrBadResponse, Operation: operation, Err: err}
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &ProviderError{Sentinel: ErrUnavailable, Operation: operation, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return &ProviderError{Sentinel: ErrNotFound, Operation: operation, Status: res.StatusCode}
	case res.StatusCode == http.StatusPreconditionFailed:
		// Anti-automation interception at the HTTP layer.
		return &ProviderError{
			Sentinel:    ErrBlocked,
			Operation:   operation,
			Status:      res.StatusCode,
			BypassToken: res.Header.Get("X-Bypass-Token"),
		}
	case res.StatusCode >= 500:
		return &ProviderError{Sentinel: ErrUpstream, Operation: operation, Status: res.StatusCode}
	case res.StatusCode != http.StatusOK:
		return &ProviderError{Sentinel: ErrBadResponse, Operation: operation, Status: res.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return &ProviderError{Sentinel: ErrBadResponse, Operation: operation, Status: res.StatusCode, Err: err}
	}
	if _, blocked := c.blocked[env.Code]; blocked {
		return &ProviderError{
			Sentinel:    ErrBlocked,
			Operation:   operation,
			Status:      res.StatusCode,
			Code:        env.Code,
			Message:     env.Message,
			BypassToken: env.BypassToken,
		}
	}
	if env.Code != 0 {
		return &ProviderError{
			Sentinel:  ErrUpstream,
			Operation: operation,
			Status:    res.StatusCode,
			Code:      env.Code,
			Message:   env.Message,
		}
	}
	if len(env.Data) == 0 {
		return &ProviderError{Sentinel: ErrBadResponse, Operation: operation, Err: fmt.Errorf("empty data field")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &ProviderError{Sentinel: ErrBadResponse, Operation: operation, Err: err}
	}
	return nil
}
