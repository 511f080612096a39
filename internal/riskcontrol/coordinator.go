// Package riskcontrol retries a manifest fetch with the bypass request
// variant when the primary attempt is blocked by anti-automation defenses
// or yields a manifest with zero usable URLs. Bypass is attempted at most
// once per fetch; a bypass that also fails resolves to
// manifest.ErrNoPlayableSource rather than a block-class error, so callers
// do not infer that a retry would help.
package riskcontrol

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"playres/internal/log"
	"playres/internal/manifest"
	"playres/internal/manifest/client"
	"playres/internal/metrics"
)

// PrimaryFunc issues the normal manifest request.
type PrimaryFunc func(ctx context.Context) (*manifest.Manifest, error)

// BypassFunc issues the bypass-variant request. token is the one-time
// token captured from the block response, or "" when the bypass was
// triggered by the zero-usable-URLs condition.
type BypassFunc func(ctx context.Context, token string) (*manifest.Manifest, error)

// Result is a resolved manifest plus whether the bypass path produced it.
// Bypassed drives a one-time user-visible notice.
type Result struct {
	Manifest *manifest.Manifest
	Bypassed bool
}

// Coordinator runs the Primary -> Bypass state machine for one fetch.
type Coordinator struct {
	logger zerolog.Logger
}

// New returns a fallback coordinator.
func New() *Coordinator {
	return &Coordinator{logger: log.WithComponent("riskcontrol")}
}

// Resolve runs one manifest fetch through the state machine.
func (c *Coordinator) Resolve(ctx context.Context, primary PrimaryFunc, bypass BypassFunc) (Result, error) {
	m, err := primary(ctx)

	switch {
	case err == nil && m.Usable():
		return Result{Manifest: m}, nil

	case err == nil:
		// Primary succeeded but no track in any tier carries a URL.
		// Secondary defense: bypass even without an explicit block signal.
		c.logger.Info().Msg("manifest has zero usable urls, attempting bypass")
		return c.attemptBypass(ctx, bypass, metrics.BypassTriggerNoUsable, "")

	case errors.Is(err, client.ErrBlocked):
		token := client.BypassTokenFrom(err)
		c.logger.Info().Bool("has_token", token != "").Msg("manifest request blocked, attempting bypass")
		return c.attemptBypass(ctx, bypass, metrics.BypassTriggerBlocked, token)

	default:
		// Ordinary fetch failures propagate unchanged.
		return Result{}, err
	}
}

func (c *Coordinator) attemptBypass(ctx context.Context, bypass BypassFunc, trigger, token string) (Result, error) {
	m, err := bypass(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, err
		}
		metrics.RecordBypass(trigger, metrics.BypassOutcomeFailed)
		c.logger.Warn().Err(err).Msg("bypass attempt failed")
		return Result{}, fmt.Errorf("%w: bypass attempt failed: %w", manifest.ErrNoPlayableSource, err)
	}
	if !m.Usable() {
		metrics.RecordBypass(trigger, metrics.BypassOutcomeFailed)
		c.logger.Warn().Msg("bypass manifest still has zero usable urls")
		return Result{}, fmt.Errorf("%w: bypass manifest unusable", manifest.ErrNoPlayableSource)
	}
	metrics.RecordBypass(trigger, metrics.BypassOutcomeOK)
	return Result{Manifest: m, Bypassed: true}, nil
}
