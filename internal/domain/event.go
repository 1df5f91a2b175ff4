// SPDX-License-Identifier: Apache-2.0

package domain

// EventKind values attached to successful results.
const (
	EventPush          = "push"
	EventPullRequest   = "pull_request"
	EventIssues        = "issues"
	EventCreate        = "create"
	EventFork          = "fork"
	EventObservation   = "observation"
	EventScrobble      = "scrobble"
	EventProfileUpdate = "profile_update"
	EventMessage       = "message"
	EventFlight        = "flight"
)

// Source identifiers. They double as the persisted source_id.
const (
	SourceGitHub      = "github"
	SourceINat        = "inat"
	SourceLastFM      = "lastfm"
	SourceLinkedIn    = "linkedin"
	SourceTelegram    = "tg"
	SourceFlightradar = "flightradar"
)

// KnownSources lists every source in stable registry order.
var KnownSources = []string{
	SourceGitHub,
	SourceINat,
	SourceTelegram,
	SourceLastFM,
	SourceLinkedIn,
	SourceFlightradar,
}
