package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// MockServer is a configurable provider stub for unit tests.
type MockServer struct {
	*httptest.Server

	// ManifestDoc is returned for manifest requests unless a block or
	// failure is scripted below.
	ManifestDoc      any
	OverlayMetaDoc   any
	OverlayItems     any
	SkipSegmentsDocs any
	ResumeDoc        any

	// BlockPrimary makes non-bestEffort manifest requests return the
	// blocked envelope code with the given token.
	BlockPrimary bool
	BlockCode    int
	BypassToken  string

	// FailStatus, when non-zero, makes every request fail with this status.
	FailStatus int

	requests atomic.Int64
}

// NewMockServer starts a provider stub. Callers own Close().
func NewMockServer() *MockServer {
	ms := &MockServer{BlockCode: -352}
	mux := http.NewServeMux()
	mux.HandleFunc("/playback/manifest", func(w http.ResponseWriter, r *http.Request) {
		ms.requests.Add(1)
		if ms.failed(w) {
			return
		}
		if ms.BlockPrimary && r.URL.Query().Get("bestEffort") != "1" {
			writeEnvelope(w, ms.BlockCode, "risk control", ms.BypassToken, nil)
			return
		}
		writeEnvelope(w, 0, "", "", ms.ManifestDoc)
	})
	mux.HandleFunc("/overlay/meta", func(w http.ResponseWriter, r *http.Request) {
		ms.requests.Add(1)
		if ms.failed(w) {
			return
		}
		writeEnvelope(w, 0, "", "", ms.OverlayMetaDoc)
	})
	mux.HandleFunc("/overlay/segment", func(w http.ResponseWriter, r *http.Request) {
		ms.requests.Add(1)
		if ms.failed(w) {
			return
		}
		writeEnvelope(w, 0, "", "", ms.OverlayItems)
	})
	mux.HandleFunc("/playback/skip", func(w http.ResponseWriter, r *http.Request) {
		ms.requests.Add(1)
		if ms.failed(w) {
			return
		}
		writeEnvelope(w, 0, "", "", ms.SkipSegmentsDocs)
	})
	mux.HandleFunc("/playback/resume", func(w http.ResponseWriter, r *http.Request) {
		ms.requests.Add(1)
		if ms.failed(w) {
			return
		}
		writeEnvelope(w, 0, "", "", ms.ResumeDoc)
	})
	ms.Server = httptest.NewServer(mux)
	return ms
}

// Requests returns the number of requests observed so far.
func (ms *MockServer) Requests() int64 {
	return ms.requests.Load()
}

func (ms *MockServer) failed(w http.ResponseWriter) bool {
	if ms.FailStatus != 0 {
		w.WriteHeader(ms.FailStatus)
		return true
	}
	return false
}

func writeEnvelope(w http.ResponseWriter, code int, message, token string, data any) {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		data = struct{}{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":        code,
		"message":     message,
		"bypassToken": token,
		"data":        data,
	})
}
