// SPDX-License-Identifier: Apache-2.0

package source

import (
	"log/slog"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
)

type RegistryDeps struct {
	Config config.Config
	Client *Client
	Logger *slog.Logger
	// LookupEnv backs environment-fed sources. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Registry knows every source this build supports.
type Registry struct {
	cfg       config.Config
	client    *Client
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
}

// Status describes whether one source is runnable.
type Status struct {
	ID         string `json:"source_id"`
	Name       string `json:"source_name"`
	Configured bool   `json:"configured"`
	Reason     string `json:"reason,omitempty"`
}

func NewRegistry(deps RegistryDeps) *Registry {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	client := deps.Client
	if client == nil {
		client = NewClient(ClientConfig{Retries: deps.Config.FetchRetries})
	}

	return &Registry{
		cfg:       deps.Config,
		client:    client,
		logger:    l,
		lookupEnv: deps.LookupEnv,
	}
}

// All constructs one adapter per known source in domain.KnownSources order,
// configured or not.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(domain.KnownSources))
	for _, id := range domain.KnownSources {
		if a := r.construct(id); a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Build returns the adapters whose configuration is complete. Every excluded
// source is logged with its reason; the order is stable across calls.
func (r *Registry) Build() []Adapter {
	all := r.All()
	out := make([]Adapter, 0, len(all))
	for _, a := range all {
		if err := a.ValidateConfig(); err != nil {
			r.logger.Info("source skipped", "source_id", a.ID(), "reason", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

// Statuses reports the configuration state of every known source.
func (r *Registry) Statuses() []Status {
	all := r.All()
	out := make([]Status, 0, len(all))
	for _, a := range all {
		st := Status{ID: a.ID(), Name: a.Name(), Configured: true}
		if err := a.ValidateConfig(); err != nil {
			st.Configured = false
			st.Reason = err.Error()
		}
		out = append(out, st)
	}
	return out
}

func (r *Registry) construct(id string) Adapter {
	cfg := r.cfg.Source(id)
	if cfg.Timeout <= 0 {
		cfg.Timeout = r.cfg.FetchTimeout
	}

	switch id {
	case domain.SourceGitHub:
		return NewGitHub(cfg, r.client, r.logger)
	case domain.SourceINat:
		return NewINat(cfg, r.client, r.logger)
	case domain.SourceTelegram:
		return NewTelegram(cfg, r.client, r.logger)
	case domain.SourceLastFM:
		return NewLastFM(cfg, r.client, r.logger)
	case domain.SourceLinkedIn:
		return NewLinkedIn(cfg, r.lookupEnv, r.logger)
	case domain.SourceFlightradar:
		return NewFlightradar(cfg, r.client, r.logger)
	default:
		r.logger.Error("no adapter for source", "source_id", id)
		return nil
	}
}
