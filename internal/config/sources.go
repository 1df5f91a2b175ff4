// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/adiadia/lastseen/internal/domain"
)

// DateFormat is the (input, output) layout pair used to normalize a source's
// timestamps. Layouts use Go reference-time notation.
type DateFormat struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	// UTC converts parsed times to UTC before formatting. When false the
	// source's own wall clock is kept.
	UTC bool `yaml:"utc"`
}

var ErrNonCanonicalOutput = errors.New("date_format.output must be the canonical layout")

// Validate requires an input layout and accepts only the canonical output
// layout; stored observations are compared as text.
func (f DateFormat) Validate() error {
	if strings.TrimSpace(f.Input) == "" {
		return errors.New("date_format.input is empty")
	}
	if f.Output != "" && f.Output != domain.ObservedAtLayout {
		return fmt.Errorf("%w %q, got %q", ErrNonCanonicalOutput, domain.ObservedAtLayout, f.Output)
	}
	return nil
}

// SourceConfig holds everything an adapter needs to build its request.
type SourceConfig struct {
	Name        string            `yaml:"name"`
	Username    string            `yaml:"username"`
	APIKey      string            `yaml:"api_key"`
	URLTemplate string            `yaml:"url_template"`
	PlatformURL string            `yaml:"platform_url"`
	Headers     map[string]string `yaml:"headers"`
	Events      []string          `yaml:"events"`
	DateFormat  DateFormat        `yaml:"date_format"`
	// EnvKey names the variable read by environment-backed sources.
	EnvKey  string        `yaml:"env_key"`
	Timeout time.Duration `yaml:"timeout"`
}

var ErrIncompleteURL = errors.New("url template incomplete")

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)

// URL expands the {username} and {api_key} placeholders of URLTemplate. It fails
// when the template is empty, references an unset value or does not yield an
// absolute http(s) URL.
func (s SourceConfig) URL() (string, error) {
	tmpl := strings.TrimSpace(s.URLTemplate)
	if tmpl == "" {
		return "", fmt.Errorf("%w: empty template", ErrIncompleteURL)
	}

	values := map[string]string{
		"{username}": strings.TrimSpace(s.Username),
		"{api_key}":  strings.TrimSpace(s.APIKey),
	}

	var missing []string
	expanded := placeholderRe.ReplaceAllStringFunc(tmpl, func(ph string) string {
		v, ok := values[ph]
		if !ok || v == "" {
			missing = append(missing, ph)
			return ph
		}
		return url.QueryEscape(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing %s", ErrIncompleteURL, strings.Join(missing, ", "))
	}

	parsed, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIncompleteURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: not an absolute http url", ErrIncompleteURL)
	}

	return expanded, nil
}

// merge returns s with every non-zero field of o applied on top.
func (s SourceConfig) merge(o SourceConfig) SourceConfig {
	if o.Name != "" {
		s.Name = o.Name
	}
	if o.Username != "" {
		s.Username = o.Username
	}
	if o.APIKey != "" {
		s.APIKey = o.APIKey
	}
	if o.URLTemplate != "" {
		s.URLTemplate = o.URLTemplate
	}
	if o.PlatformURL != "" {
		s.PlatformURL = o.PlatformURL
	}
	if len(o.Headers) > 0 {
		merged := make(map[string]string, len(s.Headers)+len(o.Headers))
		for k, v := range s.Headers {
			merged[k] = v
		}
		for k, v := range o.Headers {
			merged[k] = v
		}
		s.Headers = merged
	}
	if len(o.Events) > 0 {
		s.Events = append([]string(nil), o.Events...)
	}
	if o.DateFormat.Input != "" {
		s.DateFormat = o.DateFormat
		if s.DateFormat.Output == "" {
			s.DateFormat.Output = domain.ObservedAtLayout
		}
	} else if o.DateFormat.Output != "" {
		s.DateFormat.Output = o.DateFormat.Output
	}
	if o.EnvKey != "" {
		s.EnvKey = o.EnvKey
	}
	if o.Timeout > 0 {
		s.Timeout = o.Timeout
	}
	return s
}

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

func defaultSources() map[string]SourceConfig {
	return map[string]SourceConfig{
		domain.SourceGitHub: {
			Name:        "GitHub",
			Username:    os.Getenv("GITHUB_USERNAME"),
			URLTemplate: "https://api.github.com/users/{username}/events/public",
			PlatformURL: os.Getenv("GITHUB_PLATFORM_URL"),
			Headers: map[string]string{
				"Accept": "application/vnd.github.v3+json",
			},
			Events: []string{
				"PushEvent",
				"PullRequestEvent",
				"IssuesEvent",
				"CreateEvent",
				"ForkEvent",
			},
			DateFormat: DateFormat{Input: "2006-01-02T15:04:05Z", Output: domain.ObservedAtLayout, UTC: true},
		},
		domain.SourceINat: {
			Name:        "iNaturalist",
			Username:    os.Getenv("INAT_USERNAME"),
			URLTemplate: "https://api.inaturalist.org/v1/observations?user_login={username}&order=desc&order_by=created_at",
			PlatformURL: os.Getenv("INAT_PLATFORM_URL"),
			Headers: map[string]string{
				"Accept": "application/json",
			},
			DateFormat: DateFormat{Input: "2006-01-02T15:04:05-0700", Output: domain.ObservedAtLayout},
		},
		domain.SourceTelegram: {
			Name:        "Telegram",
			Username:    os.Getenv("TELEGRAM_USERNAME"),
			URLTemplate: "https://t.me/s/{username}",
			PlatformURL: os.Getenv("TELEGRAM_PLATFORM_URL"),
			Headers: map[string]string{
				"Accept":     "text/html",
				"User-Agent": browserUserAgent,
			},
			DateFormat: DateFormat{Input: "2006-01-02T15:04:05-0700", Output: domain.ObservedAtLayout},
		},
		domain.SourceLastFM: {
			Name:        "Last.fm",
			Username:    os.Getenv("LASTFM_USERNAME"),
			APIKey:      os.Getenv("LASTFM_API_KEY"),
			URLTemplate: "https://ws.audioscrobbler.com/2.0/?method=user.getrecenttracks&user={username}&api_key={api_key}&format=json&limit=2",
			PlatformURL: os.Getenv("LASTFM_PLATFORM_URL"),
			Headers: map[string]string{
				"Accept": "application/json",
			},
			DateFormat: DateFormat{Input: "02 Jan 2006, 15:04", Output: domain.ObservedAtLayout, UTC: true},
		},
		domain.SourceLinkedIn: {
			Name:        "LinkedIn",
			Username:    os.Getenv("LINKEDIN_USERNAME"),
			URLTemplate: "https://www.linkedin.com/in/{username}",
			PlatformURL: os.Getenv("LINKEDIN_PLATFORM_URL"),
			EnvKey:      "LINKEDIN_LAST_UPDATE_DATE",
			DateFormat:  DateFormat{Input: "2006-02-01", Output: domain.ObservedAtLayout},
		},
		domain.SourceFlightradar: {
			Name:        "myFlightradar24",
			Username:    os.Getenv("FLIGHTRADAR_USERNAME"),
			URLTemplate: "https://my.flightradar24.com/{username}/flights",
			PlatformURL: os.Getenv("FLIGHTRADAR_PLATFORM_URL"),
			Headers: map[string]string{
				"Accept":     "text/html",
				"User-Agent": browserUserAgent,
			},
			DateFormat: DateFormat{Input: "2006-01-02", Output: domain.ObservedAtLayout},
		},
	}
}
