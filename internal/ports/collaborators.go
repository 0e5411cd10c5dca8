package ports

import (
	"time"

	"tabletennis/internal/domain"
)

// BallPort controls live balls in the world.
type BallPort interface {
	// DespawnAll removes every live ball so play freezes.
	DespawnAll()
}

// SpawnConfig provides spawn placements for the current venue.
// Lookups return ok=false when no point is configured or all points are taken.
type SpawnConfig interface {
	GetPlayerSpawnPoint(mode domain.GameMode, team domain.Team, seatIndex int) (domain.Transform, bool)
	GetSpectatorSpawnPoint(team domain.Team) (domain.Transform, bool)
	GetTeamCenter(team domain.Team) domain.Vec3
	// ResetAllSpawnPoints releases every claimed point before a new round of spawns.
	ResetAllSpawnPoints()
}

// SessionStore keeps per-client session records.
type SessionStore interface {
	GetPlayerData(clientID string) (domain.PlayerRecord, bool)
	SetPlayerData(clientID string, record domain.PlayerRecord)
}

// StatisticsTracker tallies sets won across a match.
type StatisticsTracker interface {
	OnSetCompleted(winner domain.Team)
	GetCurrentStatistics() domain.GameStatistics
	ResetMatchStatistics()
	ResetSetStatistics()
}

// ScoreSource is the running set score. The controller only subscribes and resets it.
type ScoreSource interface {
	Current() domain.Score
	// Subscribe registers fn for score updates and returns a cancel func.
	Subscribe(fn func(domain.Score)) func()
	Reset()
}

// PostGamePresenter shows the between-sets screen.
type PostGamePresenter interface {
	ShowPostGameUI(stats domain.GameStatistics, isMatchComplete bool)
	HidePostGameUI()
}

// MovementGate toggles locomotion input of the local player.
type MovementGate interface {
	SetEnabled(enabled bool)
}

// CountdownPresenter renders the pre-set countdown.
type CountdownPresenter interface {
	// Show starts the countdown display; onExpire may be invoked when it reaches zero.
	Show(endTime time.Time, onExpire func())
	// Reset clears the countdown display.
	Reset()
}

// AudioCue plays match sounds.
type AudioCue interface {
	PlayCountdownBeep(isFinal bool)
}

// TeamPresenter pushes team state to a player's avatar and paddle.
type TeamPresenter interface {
	// PaintSide applies the color of the side a player currently stands on.
	PaintSide(clientID string, team domain.Team, color domain.TeamColor)
	// LockTeam sets the authoritative team of a player's avatar.
	LockTeam(clientID string, team domain.Team)
}

// AvatarMover teleports the local avatar.
type AvatarMover interface {
	Teleport(to domain.Transform)
}

// ScoreRestorer is implemented by score sources that can be reloaded after an
// authority handoff.
type ScoreRestorer interface {
	RestoreScore(score domain.Score)
}

// StatisticsRestorer is implemented by trackers that can be reloaded after an
// authority handoff.
type StatisticsRestorer interface {
	RestoreStatistics(stats domain.GameStatistics)
}
