// Command matchsim plays a whole match headlessly on a simulated clock. It
// runs the authoritative core and one observer side by side, the way a
// server and a client would, and logs what the observer sees.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"tabletennis/internal/app"
	"tabletennis/internal/config"
	"tabletennis/internal/domain"
	"tabletennis/internal/logging"
	"tabletennis/internal/replica"
	"tabletennis/internal/spawn"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxSimTime = 4 * time.Hour

func main() {
	players := flag.Int("players", 2, "number of connected players")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed for colors and rallies")
	setsToWin := flag.Int("sets", config.Default().SetsToWin, "sets needed to win the match")
	pointsPerSet := flag.Int("points", config.Default().PointsPerSet, "points needed to win a set")
	rally := flag.Duration("rally", 8*time.Second, "simulated length of a rally")
	layoutPath := flag.String("layout", "", "spawn layout JSON file (built-in venue when empty)")
	verbose := flag.Bool("v", false, "log debug output")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := logging.NewConsole(level)

	if *players < 1 || *rally <= 0 {
		logger.Error("matchsim: need at least one player and a positive rally length")
		os.Exit(2)
	}

	layout := spawn.DefaultLayout()
	if *layoutPath != "" {
		var err error
		if layout, err = spawn.LoadLayout(*layoutPath); err != nil {
			logger.Error("matchsim: %v", err)
			os.Exit(1)
		}
	}

	sim := newSimulation(*players, *seed, *setsToWin, *pointsPerSet, *rally, layout, logger)
	if err := sim.run(); err != nil {
		logger.Error("matchsim: %v", err)
		os.Exit(1)
	}
}

type simulation struct {
	now    time.Time
	rng    *rand.Rand
	rally  time.Duration
	logger *logging.Logger

	ids        []string
	positions  map[string]domain.Vec3
	bus        *app.MemoryBus
	score      *app.Scoreboard
	stats      *app.Statistics
	controller *app.Controller
	observer   *app.Observer
	nextRally  time.Time
}

func newSimulation(players int, seed int64, setsToWin, pointsPerSet int, rally time.Duration, layout *spawn.Layout, logger *logging.Logger) *simulation {
	s := &simulation{
		now:       time.Unix(0, 0).UTC(),
		rng:       rand.New(rand.NewSource(seed)),
		rally:     rally,
		logger:    logger,
		positions: make(map[string]domain.Vec3, players),
		bus:       app.NewMemoryBus(),
		stats:     app.NewStatistics(setsToWin),
	}

	sessions := app.NewMemorySessionStore()
	for i := 0; i < players; i++ {
		id := uuid.NewString()
		s.ids = append(s.ids, id)
		sessions.SetPlayerData(id, domain.PlayerRecord{DisplayName: fmt.Sprintf("player-%d", i+1)})
		// Alternate players between the two halves of the court.
		z := -1.5
		if i%2 == 1 {
			z = 1.5
		}
		s.positions[id] = domain.Vec3{X: float64(i/2) * 0.8, Z: z}
	}

	role := replica.NewRole(true)
	s.score = app.NewScoreboard(role, s.bus, logger)
	presenter := app.NewBroadcastPresenter(s.bus, logger)

	opts := app.DefaultOptions()
	opts.SetsToWin = setsToWin
	opts.PointsPerSet = pointsPerSet
	opts.Clock = func() time.Time { return s.now }
	opts.Rng = s.rng

	s.controller = app.NewController(role, opts, app.Collaborators{
		Ball:      presenter,
		Spawns:    spawn.NewSpawner(layout),
		Sessions:  sessions,
		Stats:     s.stats,
		Score:     s.score,
		PostGame:  presenter,
		Countdown: presenter,
		Audio:     presenter,
		Teams:     presenter,
		Bus:       s.bus,
	}, logger)
	s.controller.SetRoster(s.ids)
	s.controller.SetPositionSource(func(id string) (domain.Vec3, bool) {
		pos, ok := s.positions[id]
		return pos, ok
	})

	v := &viewer{logger: logger.WithField("view", "player-1")}
	s.observer = app.NewObserver(app.ObserverPorts{
		Movement:  v,
		Mover:     v,
		PostGame:  v,
		Countdown: v,
		Audio:     v,
		Teams:     v,
	}, logger)
	s.observer.RegisterPhaseListener(&app.ListenerFuncs{
		Time: func(left time.Duration) {
			if left%(30*time.Second) < time.Second || left < 5*time.Second {
				v.logger.Debug("timer: %s", left.Truncate(time.Second))
			}
		},
	})
	return s
}

func (s *simulation) run() error {
	start := s.now
	tick := config.Default().TickInterval()
	for s.now.Sub(start) < maxSimTime {
		s.now = s.now.Add(tick)
		if err := s.step(); err != nil {
			return err
		}
		if s.controller.Phase() == domain.PhasePostGame && s.stats.GetCurrentStatistics().IsMatchComplete {
			stats := s.stats.GetCurrentStatistics()
			s.logger.Info("matchsim: match over after %s, sets A=%d B=%d", s.now.Sub(start), stats.SetsWonByA, stats.SetsWonByB)
			return nil
		}
	}
	return fmt.Errorf("no result after %s of simulated time", maxSimTime)
}

func (s *simulation) step() error {
	c := s.controller
	switch c.Phase() {
	case domain.PhasePreGame:
		// Sides are only known after one recompute.
		if len(c.Teams().Sides()) == len(s.ids) {
			if err := c.StartMatch(); err != nil {
				return err
			}
		}
	case domain.PhaseInGame:
		if s.nextRally.IsZero() {
			s.nextRally = s.now.Add(s.rally)
		}
		if !s.now.Before(s.nextRally) {
			s.playRally()
		}
	case domain.PhasePostGame:
		s.nextRally = time.Time{}
		if err := c.OnNextSetRequested(); err != nil {
			return err
		}
	}

	if err := c.Tick(s.now); err != nil {
		return err
	}
	s.deliver()
	return nil
}

func (s *simulation) playRally() {
	team := domain.TeamA
	if s.rng.Intn(2) == 1 {
		team = domain.TeamB
	}
	s.stats.RecordRally()
	if err := s.score.AddPoint(team); err != nil {
		s.logger.Warn("matchsim: %v", err)
	}
	// Rally lengths vary by up to half the nominal length.
	jitter := time.Duration(s.rng.Int63n(int64(s.rally))) - s.rally/2
	s.nextRally = s.now.Add(s.rally + jitter)
}

// deliver hands the authority's events to the observer, dropping the ones
// targeted at other clients.
func (s *simulation) deliver() {
	for _, ev := range s.bus.Drain() {
		if len(ev.Recipients) > 0 && ev.Recipients[0] != s.ids[0] {
			continue
		}
		s.observer.HandleEvent(ev)
	}
	s.observer.Tick(s.now)
}

// viewer logs what a client would render.
type viewer struct {
	logger app.Logger
}

func (v *viewer) SetEnabled(enabled bool) { v.logger.Debug("movement enabled=%t", enabled) }
func (v *viewer) Teleport(to domain.Transform) {
	v.logger.Info("teleported to (%.2f, %.2f, %.2f)", to.Position.X, to.Position.Y, to.Position.Z)
}

func (v *viewer) ShowPostGameUI(stats domain.GameStatistics, isMatchComplete bool) {
	v.logger.Info("post game: sets A=%d B=%d played=%d rallies=%d complete=%t",
		stats.SetsWonByA, stats.SetsWonByB, stats.SetsPlayed, stats.RalliesThisSet, isMatchComplete)
}

func (v *viewer) HidePostGameUI() { v.logger.Debug("post game hidden") }

func (v *viewer) Show(endTime time.Time, _ func()) {
	v.logger.Info("countdown until %s", endTime.Format(time.TimeOnly))
}

func (v *viewer) Reset() {}

func (v *viewer) PlayCountdownBeep(isFinal bool) {
	if isFinal {
		v.logger.Info("final beep")
		return
	}
	v.logger.Debug("beep")
}

func (v *viewer) PaintSide(clientID string, team domain.Team, color domain.TeamColor) {
	v.logger.Debug("%s stands on side %s (%s)", clientID, team, color.Name)
}

func (v *viewer) LockTeam(clientID string, team domain.Team) {
	v.logger.Info("%s locked to team %s", clientID, team)
}
