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
	telegramDateMarker = `<time datetime="`
	telegramLinkMarker = `tgme_widget_message_date" href="`
)

// Telegram scrapes the public preview page of a channel. The page lists
// messages oldest-first, so the newest message is at the last marker.
type Telegram struct {
	base
}

func NewTelegram(cfg config.SourceConfig, client *Client, logger *slog.Logger) *Telegram {
	return &Telegram{base: newBase(domain.SourceTelegram, cfg, client, logger, "https://t.me/{username}")}
}

func (t *Telegram) ValidateConfig() error {
	return t.validateRequest()
}

func (t *Telegram) Fetch(ctx context.Context) (domain.Result, error) {
	body, err := t.get(ctx)
	if err != nil {
		return t.result(""), err
	}
	page := string(body)
	res := t.result(page)

	stamp, ok := lastBetween(page, telegramDateMarker, `"`)
	if !ok || stamp == "" {
		return res, fmt.Errorf("%w: no message date on channel page", domain.ErrParse)
	}

	t.stamp(&res, CompactOffset(stamp))
	res.RawTimestamp = stamp
	res.EventKind = domain.EventMessage
	res.Description = "New message in Telegram channel"
	if link, ok := lastBetween(page, telegramLinkMarker, `"`); ok {
		res.ActivityURL = link
	} else {
		t.logger.Warn("telegram message link not found")
	}
	return res, nil
}
