package domain

import "time"

// Phase represents the lifecycle stage of a match.
type Phase string

const (
	// PhasePreGame is the lobby state where players pick a side of the table.
	PhasePreGame Phase = "pregame"
	// PhaseCountdown is the short countdown before a set starts.
	PhaseCountdown Phase = "countdown"
	// PhaseInGame is the state where a set is being played against the clock.
	PhaseInGame Phase = "ingame"
	// PhasePostGame is the state after a set (or the whole match) concluded.
	PhasePostGame Phase = "postgame"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhasePreGame, PhaseCountdown, PhaseInGame, PhasePostGame:
		return true
	}
	return false
}

// Team identifies a side of the table.
type Team string

const (
	NoTeam Team = ""
	TeamA  Team = "a"
	TeamB  Team = "b"
)

// Opponent returns the team on the other side of the net.
// Players without a team face Team B's side.
func (t Team) Opponent() Team {
	if t == TeamB {
		return TeamA
	}
	return TeamB
}

// GameMode selects the player spawn table.
type GameMode string

const (
	GameModeSingles GameMode = "singles"
	GameModeDoubles GameMode = "doubles"
)

// MatchClock holds the absolute server times driving the countdown and the set timer.
// GameStartTime is only meaningful during the countdown, GameEndTime only in game.
type MatchClock struct {
	GameStartTime time.Time
	GameEndTime   time.Time
}

// Score is the running point count of the current set.
type Score struct {
	TeamA int
	TeamB int
}

// Of returns the points of the given team.
func (s Score) Of(team Team) int {
	switch team {
	case TeamA:
		return s.TeamA
	case TeamB:
		return s.TeamB
	}
	return 0
}

// Leader returns the team ahead on points, or NoTeam on a tie.
func (s Score) Leader() Team {
	switch {
	case s.TeamA > s.TeamB:
		return TeamA
	case s.TeamB > s.TeamA:
		return TeamB
	}
	return NoTeam
}

// GameStatistics is the set tally of the match in progress.
type GameStatistics struct {
	SetsWonByA      int
	SetsWonByB      int
	SetsPlayed      int
	RalliesThisSet  int
	IsMatchComplete bool
}

// PlayerRecord is the per-client session record.
type PlayerRecord struct {
	ClientID    string `json:"client_id"`
	DisplayName string `json:"display_name"`
	IsSpectator bool   `json:"is_spectator"`
	Team        Team   `json:"team"`
	SeatIndex   int    `json:"seat_index"` // position within the team, 0-based
}
