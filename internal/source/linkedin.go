// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
)

// LinkedIn has no usable public API; the date of the last profile update is
// supplied through an environment variable instead. It goes through the same
// contract as every network source.
type LinkedIn struct {
	base
	lookupEnv func(string) (string, bool)
}

func NewLinkedIn(cfg config.SourceConfig, lookupEnv func(string) (string, bool), logger *slog.Logger) *LinkedIn {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &LinkedIn{
		base:      newBase(domain.SourceLinkedIn, cfg, nil, logger, "https://www.linkedin.com/in/{username}"),
		lookupEnv: lookupEnv,
	}
}

func (l *LinkedIn) ValidateConfig() error {
	if l.cfg.EnvKey == "" {
		return errors.New("linkedin env key not configured")
	}
	if _, ok := l.value(); !ok {
		return fmt.Errorf("%s not set in environment", l.cfg.EnvKey)
	}
	return l.validateRequest()
}

func (l *LinkedIn) Fetch(_ context.Context) (domain.Result, error) {
	raw, ok := l.value()
	if !ok {
		return l.result(""), fmt.Errorf("%w: %s not set", domain.ErrConfigIncomplete, l.cfg.EnvKey)
	}

	res := l.result("")
	l.stamp(&res, raw)
	res.EventKind = domain.EventProfileUpdate
	res.Description = "Update info at LinkedIn"
	if u, err := l.cfg.URL(); err == nil {
		res.ActivityURL = u
	}
	return res, nil
}

func (l *LinkedIn) value() (string, bool) {
	v, ok := l.lookupEnv(l.cfg.EnvKey)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
