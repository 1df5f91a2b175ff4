// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
)

const (
	flightDateCell  = `<td class="flight-date">`
	flightInnerDate = `<span class="inner-date">`
	flightSpanEnd   = `</span>`
)

// Flightradar scrapes the flight log page of a myFlightradar24 user. The log
// table lists newest flights first.
type Flightradar struct {
	base
}

func NewFlightradar(cfg config.SourceConfig, client *Client, logger *slog.Logger) *Flightradar {
	return &Flightradar{base: newBase(domain.SourceFlightradar, cfg, client, logger, "https://my.flightradar24.com/{username}")}
}

func (f *Flightradar) ValidateConfig() error {
	return f.validateRequest()
}

func (f *Flightradar) Fetch(ctx context.Context) (domain.Result, error) {
	body, err := f.get(ctx)
	if err != nil {
		return f.result(""), err
	}
	page := string(body)
	res := f.result(page)

	cell, ok := firstBetween(collapseSpace(page), flightDateCell, flightSpanEnd)
	if !ok {
		return res, fmt.Errorf("%w: no flight date cell on page", domain.ErrParse)
	}
	// the cell is cut at its first </span>, so the inner date runs to the end
	stamp, ok := firstBetween(cell+flightSpanEnd, flightInnerDate, flightSpanEnd)
	if !ok || stamp == "" {
		return res, fmt.Errorf("%w: no inner date in flight cell", domain.ErrParse)
	}

	f.stamp(&res, stamp)
	res.EventKind = domain.EventFlight
	res.Description = "New flight recorded"
	if u, err := f.cfg.URL(); err == nil {
		res.ActivityURL = u
	}
	return res, nil
}
