package app

import (
	"time"

	"tabletennis/internal/domain"
)

// EventKind identifies emitted match events for transport dispatch.
type EventKind string

const (
	EventPhaseChanged     EventKind = "phase_changed"
	EventClockUpdated     EventKind = "clock_updated"
	EventTeamColors       EventKind = "team_colors"
	EventSideAssigned     EventKind = "side_assigned"
	EventTeamLocked       EventKind = "team_locked"
	EventRespawn          EventKind = "respawn"
	EventCountdownStarted EventKind = "countdown_started"
	EventCountdownBeep    EventKind = "countdown_beep"
	EventBallsDespawned   EventKind = "balls_despawned"
	EventPostGameShown    EventKind = "postgame_shown"
	EventPostGameHidden   EventKind = "postgame_hidden"
	EventScoreUpdated     EventKind = "score_updated"
	EventAuthorityHandoff EventKind = "authority_handoff"
)

// Event is a match event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // client IDs; empty means broadcast
}

type PhaseChangedPayload struct {
	Previous domain.Phase
	Phase    domain.Phase
}

type ClockUpdatedPayload struct {
	Clock domain.MatchClock
}

type TeamColorsPayload struct {
	Colors domain.TeamColors
}

type SideAssignedPayload struct {
	ClientID string
	Team     domain.Team
	Color    domain.TeamColor
}

type TeamLockedPayload struct {
	ClientID string
	Team     domain.Team
}

// RespawnPayload is sent to exactly one client.
type RespawnPayload struct {
	Transform domain.Transform
	Phase     domain.Phase
}

type CountdownStartedPayload struct {
	EndTime time.Time
}

type CountdownBeepPayload struct {
	IsFinal bool
}

type PostGameShownPayload struct {
	Stats           domain.GameStatistics
	IsMatchComplete bool
}

type ScoreUpdatedPayload struct {
	Score domain.Score
}

type AuthorityHandoffPayload struct {
	ResumeToken string
}
