// SPDX-License-Identifier: Apache-2.0

// Package source turns heterogeneous external activity sources into uniform
// domain.Result values.
//
// Every adapter implements Adapter; callers never invoke Fetch directly but go
// through Execute, which checks the configuration first and converts every
// error or panic raised by Fetch into an error result. Execute is the only
// place failure containment is enforced.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
)

// DefaultTimeout bounds one Fetch when the source sets no timeout of its own.
const DefaultTimeout = 20 * time.Second

// Adapter is one external source.
type Adapter interface {
	ID() string
	Name() string
	// SourceURL is the public page of the account on the platform.
	SourceURL() string
	Timeout() time.Duration
	// ValidateConfig reports why the adapter cannot build a request, or nil.
	// It must be cheap and free of side effects.
	ValidateConfig() error
	// Fetch performs the single network call or lookup. The returned result may
	// be partially filled when err is non-nil; Execute turns it into an error
	// result.
	Fetch(ctx context.Context) (domain.Result, error)
}

// Outcome is a finished Execute call together with its classification.
type Outcome struct {
	Result   domain.Result
	Kind     string
	Err      error
	Duration time.Duration
}

// Execute runs a under its own timeout and always returns a fully formed result.
func Execute(ctx context.Context, a Adapter, logger *slog.Logger) domain.Result {
	return Attempt(ctx, a, logger).Result
}

// Attempt is Execute with the error kind and duration kept for logs and metrics.
func Attempt(ctx context.Context, a Adapter, logger *slog.Logger) (out Outcome) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source_id", a.ID())

	started := time.Now()
	defer func() {
		out.Duration = time.Since(started)
	}()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("source fetch panicked", "panic", p)
			out = Outcome{
				Result: domain.ErrorResult(a.ID(), a.Name(), a.SourceURL(), fmt.Sprintf("%s: panic: %v", a.ID(), p)),
				Kind:   domain.KindPanic,
				Err:    fmt.Errorf("%s: panic: %v", a.ID(), p),
			}
		}
	}()

	if err := a.ValidateConfig(); err != nil {
		logger.Warn("source not configured", "reason", err)
		return Outcome{
			Result: domain.NotConfigured(a.ID(), a.Name(), a.SourceURL()),
			Kind:   domain.KindConfigIncomplete,
			Err:    fmt.Errorf("%s: %w: %v", a.ID(), domain.ErrConfigIncomplete, err),
		}
	}

	timeout := a.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug("source fetch starting", "timeout", timeout)

	res, err := a.Fetch(fetchCtx)
	res = fillIdentity(res, a)
	if err != nil {
		kind := domain.ErrorKind(err)
		logger.Warn("source fetch failed", "kind", kind, "error", err)
		return Outcome{
			Result: res.WithError(fmt.Sprintf("%s: %v", a.ID(), err)),
			Kind:   kind,
			Err:    err,
		}
	}

	kind := domain.KindOK
	if !res.HasActivity() {
		kind = domain.KindEmpty
	}
	logger.Debug("source fetch finished", "kind", kind, "observed_at", res.ObservedAt)
	return Outcome{Result: res, Kind: kind}
}

// fillIdentity makes sure a result always names the adapter that produced it,
// whatever the adapter left behind on an early return.
func fillIdentity(r domain.Result, a Adapter) domain.Result {
	r.SourceID = a.ID()
	if r.SourceName == "" {
		r.SourceName = a.Name()
	}
	if r.SourceURL == "" {
		r.SourceURL = a.SourceURL()
	}
	if r.IsError {
		r.EventKind = ""
	}
	r.RawPayload = domain.SanitizePayload(r.RawPayload)
	return r
}

// base carries what every adapter shares: identity, settings and the HTTP client.
type base struct {
	id     string
	cfg    config.SourceConfig
	client *Client
	logger *slog.Logger
	// profile is the fallback SourceURL template when no platform url is set.
	profile string
}

func newBase(id string, cfg config.SourceConfig, client *Client, logger *slog.Logger, profile string) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		id:      id,
		cfg:     cfg,
		client:  client,
		logger:  logger.With("source_id", id),
		profile: profile,
	}
}

func (b *base) ID() string { return b.id }

func (b *base) Name() string {
	if b.cfg.Name != "" {
		return b.cfg.Name
	}
	return b.id
}

func (b *base) SourceURL() string {
	if b.cfg.PlatformURL != "" {
		return b.cfg.PlatformURL
	}
	if b.profile == "" || b.cfg.Username == "" {
		return ""
	}
	profile := b.cfg
	profile.URLTemplate = b.profile
	u, err := profile.URL()
	if err != nil {
		return ""
	}
	return u
}

func (b *base) Timeout() time.Duration { return b.cfg.Timeout }

// validateRequest is the common check for sources that fetch a templated URL.
func (b *base) validateRequest() error {
	if b.cfg.Username == "" {
		return fmt.Errorf("%s username not configured", b.id)
	}
	if _, err := b.cfg.URL(); err != nil {
		return err
	}
	if err := b.cfg.DateFormat.Validate(); err != nil {
		return fmt.Errorf("%s: %w", b.id, err)
	}
	return nil
}

func (b *base) result(raw string) domain.Result {
	return domain.BaseResult(b.id, b.Name(), b.SourceURL(), raw)
}

// get fetches the templated URL with the source's headers.
func (b *base) get(ctx context.Context) ([]byte, error) {
	if b.client == nil {
		return nil, fmt.Errorf("%w: no http client", domain.ErrTransport)
	}
	u, err := b.cfg.URL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigIncomplete, err)
	}
	return b.client.Get(ctx, u, b.cfg.Headers)
}

// stamp records raw on res with its display form and its UTC ordering key.
func (b *base) stamp(res *domain.Result, raw string) {
	res.RawTimestamp, res.ObservedAt = FormatDate(raw, b.cfg.DateFormat, b.logger)
	if res.ObservedAt != "" {
		res.ObservedAtUTC = UTCTimestamp(raw, b.cfg.DateFormat)
	}
}

func (b *base) acceptsEvent(eventType string) bool {
	for _, e := range b.cfg.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
