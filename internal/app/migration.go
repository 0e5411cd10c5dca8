package app

import (
	"maps"
	"time"

	"tabletennis/internal/domain"
	"tabletennis/internal/ports"
)

// Snapshot is the match state handed from a departing authority to its successor.
// TimeRemaining is only set when the set was in progress.
type Snapshot struct {
	Phase              domain.Phase           `json:"phase"`
	TimeRemaining      time.Duration          `json:"time_remaining"`
	CountdownRemaining time.Duration          `json:"countdown_remaining,omitempty"`
	Colors             domain.TeamColors      `json:"colors"`
	Sides              map[string]domain.Team `json:"sides,omitempty"`
	SidesLocked        bool                   `json:"sides_locked"`
	Score              domain.Score           `json:"score"`
	Stats              domain.GameStatistics  `json:"stats"`
	TakenAt            time.Time              `json:"taken_at"`
}

// remaining deducts the handoff gap from d. The clock is shared, so the
// successor keeps the departing authority's timeline.
func (s *Snapshot) remaining(d time.Duration, now time.Time) time.Duration {
	if !s.TakenAt.IsZero() && now.After(s.TakenAt) {
		d -= now.Sub(s.TakenAt)
	}
	return max(d, 0)
}

// HostMigration captures and restores time-sensitive match state across an
// authority handoff. The transport calls its two hooks.
type HostMigration struct {
	c        *Controller
	logger   Logger
	consumed bool
}

// NewHostMigration binds the recovery hooks to a controller.
func NewHostMigration(c *Controller, logger Logger) *HostMigration {
	return &HostMigration{c: c, logger: orNop(logger)}
}

// OnAuthorityAboutToChange snapshots the state the next authority needs.
// It must run before the current authority tears down.
func (m *HostMigration) OnAuthorityAboutToChange(now time.Time) *Snapshot {
	c := m.c
	snap := &Snapshot{
		Phase:       c.Phase(),
		Colors:      c.TeamColors(),
		Sides:       c.teams.Sides(),
		SidesLocked: c.teams.Locked(),
		Stats:       c.currentStatistics(),
		TakenAt:     now,
	}
	if c.collab.Score != nil {
		snap.Score = c.collab.Score.Current()
	}

	clock := c.Clock()
	switch snap.Phase {
	case domain.PhaseInGame:
		snap.TimeRemaining = max(clock.GameEndTime.Sub(now), 0)
	case domain.PhaseCountdown:
		snap.CountdownRemaining = max(clock.GameStartTime.Sub(now), 0)
	}
	m.logger.Info("HostMigration: snapshot taken in phase %s (remaining=%s)", snap.Phase, snap.TimeRemaining)
	return snap
}

// OnNewAuthoritySpawned re-establishes priorPhase on the new authority.
// An interrupted set resumes directly in game on its original timeline instead
// of restarting the countdown. The snapshot is consumed once; later calls are ignored.
func (m *HostMigration) OnNewAuthoritySpawned(priorPhase domain.Phase, snap *Snapshot, now time.Time) error {
	if err := m.c.guard("OnNewAuthoritySpawned"); err != nil {
		return err
	}
	if m.consumed {
		m.logger.Debug("HostMigration: snapshot already consumed, ignoring")
		return nil
	}
	m.consumed = true
	m.c.resume(priorPhase, snap, now)
	m.logger.Info("HostMigration: resumed in phase %s", m.c.Phase())
	return nil
}

// Consumed reports whether a snapshot has been restored.
func (m *HostMigration) Consumed() bool { return m.consumed }

func (c *Controller) resume(priorPhase domain.Phase, snap *Snapshot, now time.Time) {
	if snap != nil {
		if snap.Colors.Set && !c.colors.Get().Set {
			c.setColors(snap.Colors)
		}
		c.teams.Restore(maps.Clone(snap.Sides), snap.SidesLocked && priorPhase != domain.PhasePreGame)
		if restorer, ok := c.collab.Score.(ports.ScoreRestorer); ok {
			restorer.RestoreScore(snap.Score)
		}
		if restorer, ok := c.collab.Stats.(ports.StatisticsRestorer); ok {
			restorer.RestoreStatistics(snap.Stats)
		}
	}
	c.ensureTeamColors()

	switch priorPhase {
	case domain.PhaseInGame:
		if snap == nil {
			c.logger.Warn("PhaseController: resumed in game without a snapshot, restarting countdown")
			c.beginCountdown(now, c.opts.CountdownDuration)
			return
		}
		c.enterInGame(now.Add(snap.remaining(snap.TimeRemaining, now)))

	case domain.PhaseCountdown:
		remaining := c.opts.CountdownDuration
		if snap != nil && snap.CountdownRemaining > 0 {
			remaining = snap.remaining(snap.CountdownRemaining, now)
		}
		c.beginCountdown(now, remaining)

	case domain.PhasePostGame:
		c.setClock(domain.MatchClock{})
		c.setPhase(domain.PhasePostGame)
		if c.collab.PostGame != nil {
			stats := c.currentStatistics()
			c.collab.PostGame.ShowPostGameUI(stats, stats.IsMatchComplete)
		}
		c.respawn.RespawnAll(c.roster, domain.PhasePostGame)

	default:
		c.teams.Unlock()
		c.setClock(domain.MatchClock{})
		c.setPhase(domain.PhasePreGame)
		c.respawn.RespawnAll(c.roster, domain.PhasePreGame)
	}
}
