// SPDX-License-Identifier: Apache-2.0

package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adiadia/lastseen/internal/config"
	"github.com/adiadia/lastseen/internal/domain"
)

type lastfmResponse struct {
	Error       int    `json:"error"`
	Message     string `json:"message"`
	RecentTrack struct {
		// a single track comes back as an object, several as an array
		Track json.RawMessage `json:"track"`
	} `json:"recenttracks"`
}

type lastfmTrack struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Artist struct {
		Text string `json:"#text"`
	} `json:"artist"`
	Date *struct {
		Text string `json:"#text"`
	} `json:"date"`
}

// LastFM reads the recent scrobbles of a Last.fm user.
type LastFM struct {
	base
}

func NewLastFM(cfg config.SourceConfig, client *Client, logger *slog.Logger) *LastFM {
	return &LastFM{base: newBase(domain.SourceLastFM, cfg, client, logger, "https://www.last.fm/user/{username}")}
}

func (l *LastFM) ValidateConfig() error {
	if l.cfg.APIKey == "" {
		return errors.New("lastfm api key not configured")
	}
	return l.validateRequest()
}

func (l *LastFM) Fetch(ctx context.Context) (domain.Result, error) {
	body, err := l.get(ctx)
	if err != nil {
		return l.result(""), err
	}
	res := l.result(string(body))

	var data lastfmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return res, fmt.Errorf("%w: decode recent tracks: %v", domain.ErrParse, err)
	}
	if data.Error != 0 {
		return res, fmt.Errorf("%w: api error %d: %s", domain.ErrTransport, data.Error, data.Message)
	}

	tracks, err := decodeTracks(data.RecentTrack.Track)
	if err != nil {
		return res, fmt.Errorf("%w: decode tracks: %v", domain.ErrParse, err)
	}

	// a track playing right now has no date yet; the first dated one is the
	// latest finished scrobble
	for _, tr := range tracks {
		if tr.Date == nil || tr.Date.Text == "" {
			continue
		}
		l.stamp(&res, tr.Date.Text)
		res.EventKind = domain.EventScrobble
		res.Description = "Listening to music"
		if tr.Artist.Text != "" && tr.Name != "" {
			res.Description = fmt.Sprintf("Listening to %s - %s", tr.Artist.Text, tr.Name)
		}
		res.ActivityURL = l.SourceURL()
		return res, nil
	}

	res.Description = "no qualifying activity"
	return res, nil
}

func decodeTracks(raw json.RawMessage) ([]lastfmTrack, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var one lastfmTrack
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		return []lastfmTrack{one}, nil
	}
	var many []lastfmTrack
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}
