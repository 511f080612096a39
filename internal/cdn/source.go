// Package cdn wraps the transport for one track behind an ordered list of
// candidate mirror URLs. Callers see the interface of a single-URL source;
// on retryable failure the source advances to the next untried candidate
// transparently and remembers the survivor for subsequent requests.
package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"playres/internal/log"
	"playres/internal/metrics"
)

var (
	// ErrNoCandidates means the source was built without any usable URL.
	ErrNoCandidates = errors.New("cdn: no candidate urls")
	// ErrCandidatesExhausted wraps the last failure after every candidate
	// failed within one attempt chain.
	ErrCandidatesExhausted = errors.New("cdn: all candidates exhausted")
)

// Doer is the subset of http.Client the source needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Source is the failover transport for one track.
type Source struct {
	name      string
	doer      Doer
	retryable map[int]struct{}
	logger    zerolog.Logger

	mu         sync.RWMutex
	candidates []string
	cursor     int
}

// Option configures a Source.
type Option func(*Source)

// WithDoer injects the HTTP client.
func WithDoer(d Doer) Option {
	return func(s *Source) { s.doer = d }
}

// WithRetryableStatuses sets the HTTP statuses that advance the cursor.
func WithRetryableStatuses(statuses []int) Option {
	return func(s *Source) {
		s.retryable = make(map[int]struct{}, len(statuses))
		for _, st := range statuses {
			s.retryable[st] = struct{}{}
		}
	}
}

// NewSource builds a failover source over the ordered, deduplicated
// candidate list. Duplicates are collapsed preserving first occurrence.
func NewSource(name string, candidates []string, opts ...Option) *Source {
	s := &Source{
		name:      name,
		doer:      &http.Client{Timeout: 30 * time.Second},
		retryable: map[int]struct{}{403: {}, 404: {}, 500: {}, 502: {}, 503: {}, 504: {}},
		logger:    log.WithComponent("cdn").With().Str("source", name).Logger(),
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		s.candidates = append(s.candidates, c)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active returns the currently-active candidate URL. Diagnostics only; it
// has no control-plane effect.
func (s *Source) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candidates) == 0 {
		return ""
	}
	return s.candidates[s.cursor]
}

// Get issues a GET through the failover chain.
func (s *Source) Get(ctx context.Context) (*http.Response, error) {
	return s.Do(ctx, func(ctx context.Context, url string) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}

// Do runs one attempt chain: it builds a request against the active
// candidate and, on retryable failure, advances to the next untried
// candidate. A candidate that failed within this chain is never retried
// by the same chain; when every candidate has failed the last error is
// returned wrapped in ErrCandidatesExhausted.
func (s *Source) Do(ctx context.Context, build func(ctx context.Context, url string) (*http.Request, error)) (*http.Response, error) {
	s.mu.RLock()
	candidates := s.candidates
	start := s.cursor
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	var lastErr error
	for attempt := 0; attempt < len(candidates); attempt++ {
		idx := (start + attempt) % len(candidates)
		url := candidates[idx]

		req, err := build(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("cdn: build request for %s: %w", url, err)
		}

		res, err := s.doer.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			s.advance(idx, attempt, 0)
			continue
		}

		if _, retry := s.retryable[res.StatusCode]; retry {
			lastErr = fmt.Errorf("cdn: %s returned HTTP %d", url, res.StatusCode)
			drain(res)
			s.advance(idx, attempt, res.StatusCode)
			continue
		}

		s.setCursor(idx)
		return res, nil
	}

	metrics.RecordCDNExhausted()
	s.logger.Warn().Err(lastErr).Msg("every candidate failed")
	return nil, fmt.Errorf("%w: %w", ErrCandidatesExhausted, lastErr)
}

func (s *Source) advance(failedIdx, attempt, status int) {
	metrics.RecordCDNAdvance(status)
	s.logger.Debug().
		Str(log.FieldCandidate, s.candidates[failedIdx]).
		Int(log.FieldAttempt, attempt).
		Int(log.FieldStatus, status).
		Msg("candidate failed, advancing cursor")
}

func (s *Source) setCursor(idx int) {
	s.mu.Lock()
	if s.cursor != idx {
		s.cursor = idx
		metrics.SetCDNActiveCandidate(s.name, idx)
	}
	s.mu.Unlock()
}

// drain discards and closes a response body so the connection can be reused.
func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
	_ = res.Body.Close()
}
