// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
)

var githubEventKinds = map[string]string{
	"PushEvent":        domain.EventPush,
	"PullRequestEvent": domain.EventPullRequest,
	"IssuesEvent":      domain.EventIssues,
	"CreateEvent":      domain.EventCreate,
	"ForkEvent":        domain.EventFork,
}

type githubEvent struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Repo      struct {
		Name string `json:"name"`
	} `json:"repo"`
}

// GitHub reads the public events feed of a user.
type GitHub struct {
	base
}

func NewGitHub(cfg config.SourceConfig, client *Client, logger *slog.Logger) *GitHub {
	return &GitHub{base: newBase(domain.SourceGitHub, cfg, client, logger, "https://github.com/{username}")}
}

func (g *GitHub) ValidateConfig() error {
	if err := g.validateRequest(); err != nil {
		return err
	}
	if len(g.cfg.Events) == 0 {
		return errors.New("github event whitelist is empty")
	}
	return nil
}

func (g *GitHub) Fetch(ctx context.Context) (domain.Result, error) {
	body, err := g.get(ctx)
	if err != nil {
		return g.result(""), err
	}
	res := g.result(string(body))

	var events []githubEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return res, fmt.Errorf("%w: decode events: %v", domain.ErrParse, err)
	}
	g.logger.Debug("github events fetched", "count", len(events))

	// created_at is RFC 3339 in UTC, so string order is time order
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})

	for _, ev := range events {
		if !g.acceptsEvent(ev.Type) {
			continue
		}
		g.stamp(&res, ev.CreatedAt)
		res.EventKind = githubEventKinds[ev.Type]
		res.Description = fmt.Sprintf("%s at repo %s", ev.Type, ev.Repo.Name)
		if ev.Repo.Name != "" {
			res.ActivityURL = "https://github.com/" + ev.Repo.Name
		}
		return res, nil
	}

	res.Description = "no qualifying activity"
	return res, nil
}
