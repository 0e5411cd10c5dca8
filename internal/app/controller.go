package app

import (
	"math/rand"
	"slices"
	"time"

	"tabletennis/internal/domain"
	"tabletennis/internal/ports"
	"tabletennis/internal/replica"
)

// ErrNotAuthority is returned when canonical match state is mutated from a
// node that is not the authority.
var ErrNotAuthority = replica.ErrNotAuthority

// beepThreshold is the remaining set time under which every whole second beeps.
const beepThreshold = 11 * time.Second

// Options are the match rules the controller enforces.
type Options struct {
	CountdownDuration time.Duration
	SetDuration       time.Duration
	PointsPerSet      int
	SetsToWin         int
	Mode              domain.GameMode
	Palette           []domain.ColorPair

	// Clock returns the shared server time. Defaults to time.Now.
	Clock func() time.Time
	// Rng draws the team colors. Defaults to a time-seeded source.
	Rng *rand.Rand
}

// DefaultOptions returns the standard rules: 4s countdown, 180s sets,
// 11 points per set, best of five.
func DefaultOptions() Options {
	return Options{
		CountdownDuration: 4 * time.Second,
		SetDuration:       180 * time.Second,
		PointsPerSet:      11,
		SetsToWin:         3,
		Mode:              domain.GameModeSingles,
	}
}

// Collaborators are the external systems the controller drives. Any of them
// may be nil; the controller degrades instead of failing.
type Collaborators struct {
	Ball      ports.BallPort
	Spawns    ports.SpawnConfig
	Sessions  ports.SessionStore
	Stats     ports.StatisticsTracker
	Score     ports.ScoreSource
	PostGame  ports.PostGamePresenter
	Movement  ports.MovementGate
	Countdown ports.CountdownPresenter
	Audio     ports.AudioCue
	Teams     ports.TeamPresenter
	Bus       MessageBus
}

// Controller is the match phase state machine. Only the authority runs its
// transitions; the resulting phase, clock and team colors are replicated to
// every observer over the bus.
type Controller struct {
	role   replica.Authority
	opts   Options
	collab Collaborators
	logger Logger

	phase  *replica.Cell[domain.Phase]
	clock  *replica.Cell[domain.MatchClock]
	colors *replica.Cell[domain.TeamColors]

	registry *Registry
	reaction *PhaseReaction
	teams    *TeamAssigner
	respawn  *RespawnCoordinator

	roster     []string
	positionOf PositionFunc
	lastSecond int

	cancelScore func()
}

// NewController wires a controller in PreGame.
func NewController(role replica.Authority, opts Options, collab Collaborators, logger Logger) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Rng == nil {
		opts.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Mode == "" {
		opts.Mode = domain.GameModeSingles
	}

	c := &Controller{
		role:       role,
		opts:       opts,
		collab:     collab,
		logger:     orNop(logger),
		phase:      replica.NewCell(role, domain.PhasePreGame),
		clock:      replica.NewCell(role, domain.MatchClock{}),
		colors:     replica.NewCell(role, domain.TeamColors{}),
		registry:   NewRegistry(),
		lastSecond: -1,
	}
	c.reaction = &PhaseReaction{
		Movement:  collab.Movement,
		PostGame:  collab.PostGame,
		Countdown: collab.Countdown,
		Registry:  c.registry,
	}
	c.teams = NewTeamAssigner(c.colors.Get, collab.Teams, collab.Sessions, c.logger)
	c.respawn = NewRespawnCoordinator(collab.Spawns, collab.Sessions, collab.Bus, opts.Mode, c.teams.TeamOf, c.logger)

	c.phase.Subscribe(func(prev, next domain.Phase) {
		c.publish(Event{Kind: EventPhaseChanged, Payload: PhaseChangedPayload{Previous: prev, Phase: next}})
		c.reaction.Apply(prev, next)
	})
	c.clock.Subscribe(func(_, next domain.MatchClock) {
		c.publish(Event{Kind: EventClockUpdated, Payload: ClockUpdatedPayload{Clock: next}})
	})
	c.colors.Subscribe(func(_, next domain.TeamColors) {
		c.publish(Event{Kind: EventTeamColors, Payload: TeamColorsPayload{Colors: next}})
		if next.Set {
			c.registry.NotifyTeamColors(next.TeamA, next.TeamB)
		}
	})

	if collab.Score != nil {
		c.cancelScore = collab.Score.Subscribe(c.onScoreUpdated)
	} else {
		c.logger.Warn("PhaseController: no score source, sets only end on the timer")
	}
	if collab.Stats == nil {
		c.logger.Warn("PhaseController: no statistics tracker, using empty statistics")
	}
	if collab.Spawns == nil {
		c.logger.Warn("PhaseController: no spawn configuration, respawns fall back to team centers")
	}
	return c
}

// Close detaches the controller from its score source.
func (c *Controller) Close() {
	if c.cancelScore != nil {
		c.cancelScore()
		c.cancelScore = nil
	}
}

// Phase returns the canonical phase.
func (c *Controller) Phase() domain.Phase { return c.phase.Get() }

// Clock returns the replicated match clock.
func (c *Controller) Clock() domain.MatchClock { return c.clock.Get() }

// TeamColors returns the match's color assignment.
func (c *Controller) TeamColors() domain.TeamColors { return c.colors.Get() }

// Teams exposes the team assigner.
func (c *Controller) Teams() *TeamAssigner { return c.teams }

// Respawner exposes the respawn coordinator.
func (c *Controller) Respawner() *RespawnCoordinator { return c.respawn }

// Options returns the rules in effect.
func (c *Controller) Options() Options { return c.opts }

// SetRoster replaces the list of connected clients, in join order.
func (c *Controller) SetRoster(clientIDs []string) {
	c.roster = slices.Clone(clientIDs)
}

// Roster returns the connected clients.
func (c *Controller) Roster() []string { return slices.Clone(c.roster) }

// SetPositionSource tells the controller where avatars stand.
func (c *Controller) SetPositionSource(fn PositionFunc) {
	c.positionOf = fn
}

// TimeLeft returns the remaining time of the running countdown or set.
func (c *Controller) TimeLeft(now time.Time) time.Duration {
	clock := c.clock.Get()
	switch c.phase.Get() {
	case domain.PhaseCountdown:
		return clock.GameStartTime.Sub(now)
	case domain.PhaseInGame:
		return clock.GameEndTime.Sub(now)
	}
	return 0
}

// RegisterPhaseListener adds l and immediately replays the current phase and
// team colors to it.
func (c *Controller) RegisterPhaseListener(l PhaseListener) {
	if !c.registry.Add(l) {
		return
	}
	l.OnPhaseChanged(c.phase.Get())
	if colors := c.colors.Get(); colors.Set {
		l.OnTeamColorUpdated(colors.TeamA, colors.TeamB)
	}
}

// UnregisterPhaseListener removes l.
func (c *Controller) UnregisterPhaseListener(l PhaseListener) {
	c.registry.Remove(l)
}

// StartMatch locks teams and begins the countdown. Valid from PreGame or PostGame.
func (c *Controller) StartMatch() error {
	if err := c.guard("StartMatch"); err != nil {
		return err
	}
	if p := c.phase.Get(); p != domain.PhasePreGame && p != domain.PhasePostGame {
		c.logger.Debug("PhaseController: StartMatch ignored in phase %s", p)
		return nil
	}

	c.ensureTeamColors()
	c.resetScore()
	c.teams.LockSides(c.roster)
	c.respawn.ResetSpawnPoints()
	c.beginCountdown(c.opts.Clock(), c.opts.CountdownDuration)
	c.logger.Info("PhaseController: match started with %d clients", len(c.roster))
	return nil
}

// AdvanceToInGame ends the countdown. It only acts once the countdown expired.
func (c *Controller) AdvanceToInGame() error {
	if err := c.guard("AdvanceToInGame"); err != nil {
		return err
	}
	c.advanceToInGame(c.opts.Clock())
	return nil
}

// Tick runs one update cycle on the authority.
func (c *Controller) Tick(now time.Time) error {
	if err := c.guard("Tick"); err != nil {
		return err
	}

	switch c.phase.Get() {
	case domain.PhasePreGame:
		c.ensureTeamColors()
		c.teams.RecomputeSides(c.roster, c.positionOf)

	case domain.PhaseCountdown:
		left := c.clock.Get().GameStartTime.Sub(now)
		if left <= 0 {
			c.advanceToInGame(now)
			return nil
		}
		c.notifyTimeLeft(left, false)

	case domain.PhaseInGame:
		left := c.clock.Get().GameEndTime.Sub(now)
		if left < 0 {
			winner := domain.NoTeam
			if c.collab.Score != nil {
				winner = c.collab.Score.Current().Leader()
			}
			c.logger.Info("PhaseController: set timer expired, leader=%q", winner)
			c.completeSet(winner)
			return nil
		}
		c.notifyTimeLeft(left, true)
	}
	return nil
}

// OnSetCompleted ends the running set with winner. Calls outside InGame are ignored,
// so a forced completion and a timer expiry in the same cycle only count once.
func (c *Controller) OnSetCompleted(winner domain.Team) error {
	if err := c.guard("OnSetCompleted"); err != nil {
		return err
	}
	c.completeSet(winner)
	return nil
}

// OnNextSetRequested starts the next set, or a fresh match when the current one is decided.
func (c *Controller) OnNextSetRequested() error {
	if err := c.guard("OnNextSetRequested"); err != nil {
		return err
	}
	if p := c.phase.Get(); p != domain.PhasePostGame {
		c.logger.Debug("PhaseController: next set ignored in phase %s", p)
		return nil
	}

	if c.currentStatistics().IsMatchComplete {
		if c.collab.Stats != nil {
			c.collab.Stats.ResetMatchStatistics()
		}
		c.resetScore()
		return c.StartMatch()
	}

	if c.collab.Stats != nil {
		c.collab.Stats.ResetSetStatistics()
	}
	c.resetScore()
	c.teams.LockSides(c.roster)
	c.respawn.ResetSpawnPoints()
	c.beginCountdown(c.opts.Clock(), c.opts.CountdownDuration)
	return nil
}

// OnExitRequested leaves the post-game screen back to the lobby, unlocking sides.
func (c *Controller) OnExitRequested() error {
	if err := c.guard("OnExitRequested"); err != nil {
		return err
	}
	if p := c.phase.Get(); p != domain.PhasePostGame {
		c.logger.Debug("PhaseController: exit ignored in phase %s", p)
		return nil
	}

	if c.collab.Stats != nil {
		c.collab.Stats.ResetMatchStatistics()
	}
	c.resetScore()
	c.teams.Unlock()
	c.setClock(domain.MatchClock{})
	c.setPhase(domain.PhasePreGame)
	c.respawn.RespawnAll(c.roster, domain.PhasePreGame)
	return nil
}

// OnSpectatorModeRequested turns clientID into a spectator and moves it to a spectator point.
func (c *Controller) OnSpectatorModeRequested(clientID string) error {
	if err := c.guard("OnSpectatorModeRequested"); err != nil {
		return err
	}
	p := c.phase.Get()
	if p != domain.PhasePreGame && p != domain.PhasePostGame {
		c.logger.Debug("PhaseController: spectator request from %s ignored in phase %s", clientID, p)
		return nil
	}
	if c.collab.Sessions == nil {
		c.logger.Warn("PhaseController: no session store, spectator request from %s dropped", clientID)
		return nil
	}
	record, ok := c.collab.Sessions.GetPlayerData(clientID)
	if !ok {
		c.logger.Warn("PhaseController: no session record for %s, spectator request dropped", clientID)
		return nil
	}
	record.IsSpectator = true
	c.collab.Sessions.SetPlayerData(clientID, record)
	c.respawn.Respawn(clientID, p)
	return nil
}

func (c *Controller) onScoreUpdated(score domain.Score) {
	if !c.role.IsAuthority() || c.phase.Get() != domain.PhaseInGame {
		return
	}
	if complete, winner := domain.CheckSetComplete(score.TeamA, score.TeamB, c.opts.PointsPerSet); complete {
		c.completeSet(winner)
	}
}

func (c *Controller) completeSet(winner domain.Team) {
	if p := c.phase.Get(); p != domain.PhaseInGame {
		c.logger.Debug("PhaseController: set completion ignored in phase %s", p)
		return
	}

	if c.collab.Ball != nil {
		c.collab.Ball.DespawnAll()
	}
	if c.collab.Stats != nil && winner != domain.NoTeam {
		c.collab.Stats.OnSetCompleted(winner)
	}
	stats := c.currentStatistics()

	c.setClock(domain.MatchClock{})
	c.setPhase(domain.PhasePostGame)
	if c.collab.PostGame != nil {
		c.collab.PostGame.ShowPostGameUI(stats, stats.IsMatchComplete)
	}
	c.respawn.RespawnAll(c.roster, domain.PhasePostGame)
	c.logger.Info("PhaseController: set won by %q (A=%d, B=%d, match complete=%t)",
		winner, stats.SetsWonByA, stats.SetsWonByB, stats.IsMatchComplete)
}

func (c *Controller) beginCountdown(now time.Time, duration time.Duration) {
	start := now.Add(duration)
	c.lastSecond = -1
	c.setClock(domain.MatchClock{GameStartTime: start})
	c.setPhase(domain.PhaseCountdown)
	if c.collab.Countdown != nil {
		c.collab.Countdown.Show(start, func() {
			if err := c.AdvanceToInGame(); err != nil {
				c.logger.Error("PhaseController: countdown expiry: %v", err)
			}
		})
	}
	c.respawn.RespawnAll(c.roster, domain.PhaseCountdown)
}

func (c *Controller) advanceToInGame(now time.Time) {
	if c.phase.Get() != domain.PhaseCountdown {
		return
	}
	if now.Before(c.clock.Get().GameStartTime) {
		return
	}
	c.enterInGame(now.Add(c.opts.SetDuration))
}

func (c *Controller) enterInGame(end time.Time) {
	c.lastSecond = -1
	c.setClock(domain.MatchClock{GameEndTime: end})
	c.setPhase(domain.PhaseInGame)
}

func (c *Controller) notifyTimeLeft(left time.Duration, inGame bool) {
	second := int(left / time.Second)
	if second == c.lastSecond {
		return
	}
	c.lastSecond = second
	c.registry.NotifyTimeLeft(left)
	if inGame && left < beepThreshold && c.collab.Audio != nil {
		c.collab.Audio.PlayCountdownBeep(second == 0)
	}
}

// ensureTeamColors draws the match colors the first time they are needed.
func (c *Controller) ensureTeamColors() {
	if c.colors.Get().Set {
		return
	}
	c.setColors(domain.DrawTeamColors(c.opts.Rng, c.opts.Palette))
}

func (c *Controller) currentStatistics() domain.GameStatistics {
	if c.collab.Stats == nil {
		return domain.GameStatistics{}
	}
	stats := c.collab.Stats.GetCurrentStatistics()
	stats.IsMatchComplete = stats.IsMatchComplete || domain.CheckMatchComplete(stats, c.opts.SetsToWin)
	return stats
}

func (c *Controller) resetScore() {
	if c.collab.Score != nil {
		c.collab.Score.Reset()
	}
}

func (c *Controller) guard(op string) error {
	if c.role == nil || !c.role.IsAuthority() {
		c.logger.Error("PhaseController: %s rejected, node is not the authority", op)
		return ErrNotAuthority
	}
	return nil
}

func (c *Controller) setPhase(p domain.Phase) {
	if err := c.phase.Set(p); err != nil {
		c.logger.Error("PhaseController: set phase %s: %v", p, err)
	}
}

func (c *Controller) setClock(clock domain.MatchClock) {
	if err := c.clock.Set(clock); err != nil {
		c.logger.Error("PhaseController: set clock: %v", err)
	}
}

func (c *Controller) setColors(colors domain.TeamColors) {
	if err := c.colors.Set(colors); err != nil {
		c.logger.Error("PhaseController: set team colors: %v", err)
	}
}

func (c *Controller) publish(ev Event) {
	if err := publish(c.collab.Bus, ev); err != nil {
		c.logger.Warn("PhaseController: failed to publish %s: %v", ev.Kind, err)
	}
}
