// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
)

type inatResponse struct {
	Results []inatObservation `json:"results"`
}

type inatObservation struct {
	ID           int64  `json:"id"`
	CreatedAt    string `json:"created_at"`
	SpeciesGuess string `json:"species_guess"`
	PlaceGuess   string `json:"place_guess"`
}

// INat reads the newest observation of an iNaturalist user.
type INat struct {
	base
}

func NewINat(cfg config.SourceConfig, client *Client, logger *slog.Logger) *INat {
	return &INat{base: newBase(domain.SourceINat, cfg, client, logger, "https://www.inaturalist.org/people/{username}")}
}

func (n *INat) ValidateConfig() error {
	return n.validateRequest()
}

func (n *INat) Fetch(ctx context.Context) (domain.Result, error) {
	body, err := n.get(ctx)
	if err != nil {
		return n.result(""), err
	}
	res := n.result(string(body))

	var data inatResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return res, fmt.Errorf("%w: decode observations: %v", domain.ErrParse, err)
	}
	// the request asks for order=desc by created_at
	if len(data.Results) == 0 {
		res.Description = "no qualifying activity"
		return res, nil
	}
	obs := data.Results[0]

	n.stamp(&res, CompactOffset(obs.CreatedAt))
	res.RawTimestamp = obs.CreatedAt
	res.EventKind = domain.EventObservation
	res.Description = fmt.Sprintf("Observation of %s at %s",
		orDefault(obs.SpeciesGuess, "Unknown species"),
		orDefault(obs.PlaceGuess, "unknown location"),
	)
	if obs.ID > 0 {
		res.ActivityURL = fmt.Sprintf("https://www.inaturalist.org/observations/%d", obs.ID)
	}
	return res, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
