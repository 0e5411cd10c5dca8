package app

import (
	"errors"
	"fmt"

	"tabletennis/internal/domain"
	"tabletennis/internal/replica"
)

// ErrUnknownTeam is returned when a point is reported for no team.
var ErrUnknownTeam = errors.New("unknown team")

// Scoreboard is the running set score. It is a replicated value written by the
// authority; updates are broadcast on the bus when one is attached.
type Scoreboard struct {
	cell *replica.Cell[domain.Score]
}

// NewScoreboard creates a zeroed scoreboard. bus may be nil.
func NewScoreboard(role replica.Authority, bus MessageBus, logger Logger) *Scoreboard {
	s := &Scoreboard{cell: replica.NewCell(role, domain.Score{})}
	if bus != nil {
		logger = orNop(logger)
		s.cell.Subscribe(func(_, next domain.Score) {
			if err := bus.Broadcast(Event{Kind: EventScoreUpdated, Payload: ScoreUpdatedPayload{Score: next}}); err != nil {
				logger.Warn("Scoreboard: failed to broadcast score: %v", err)
			}
		})
	}
	return s
}

// Current returns the score.
func (s *Scoreboard) Current() domain.Score { return s.cell.Get() }

// Subscribe registers fn for score changes.
func (s *Scoreboard) Subscribe(fn func(domain.Score)) func() {
	return s.cell.Subscribe(func(_, next domain.Score) { fn(next) })
}

// Reset zeroes the score. It is a no-op off the authority.
func (s *Scoreboard) Reset() {
	_ = s.cell.Set(domain.Score{})
}

// AddPoint awards a rally to team.
func (s *Scoreboard) AddPoint(team domain.Team) error {
	score := s.cell.Get()
	switch team {
	case domain.TeamA:
		score.TeamA++
	case domain.TeamB:
		score.TeamB++
	default:
		return fmt.Errorf("add point for %q: %w", team, ErrUnknownTeam)
	}
	return s.cell.Set(score)
}

// RestoreScore reloads a score carried over an authority handoff.
func (s *Scoreboard) RestoreScore(score domain.Score) {
	_ = s.cell.Set(score)
}
