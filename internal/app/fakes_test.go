package app

import (
	"math/rand"
	"testing"
	"time"

	"tabletennis/internal/domain"
	"tabletennis/internal/replica"
)

type recordingLogger struct {
	warns  []string
	errors []string
}

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})  {}
func (l *recordingLogger) Warn(format string, _ ...interface{}) {
	l.warns = append(l.warns, format)
}
func (l *recordingLogger) Error(format string, _ ...interface{}) {
	l.errors = append(l.errors, format)
}

type fakeBall struct{ despawns int }

func (b *fakeBall) DespawnAll() { b.despawns++ }

type fakeSpawns struct {
	players    map[domain.Team][]domain.Transform
	spectators []domain.Transform
	centers    map[domain.Team]domain.Vec3
	resets     int
}

func (s *fakeSpawns) GetPlayerSpawnPoint(_ domain.GameMode, team domain.Team, seat int) (domain.Transform, bool) {
	points := s.players[team]
	if seat < 0 || seat >= len(points) {
		return domain.Transform{}, false
	}
	return points[seat], true
}

func (s *fakeSpawns) GetSpectatorSpawnPoint(domain.Team) (domain.Transform, bool) {
	if len(s.spectators) == 0 {
		return domain.Transform{}, false
	}
	return s.spectators[0], true
}

func (s *fakeSpawns) GetTeamCenter(team domain.Team) domain.Vec3 {
	if c, ok := s.centers[team]; ok {
		return c
	}
	return domain.DefaultTeamCenter(team)
}

func (s *fakeSpawns) ResetAllSpawnPoints() { s.resets++ }

type fakePostGame struct {
	shown     int
	hidden    int
	lastStats domain.GameStatistics
	complete  bool
}

func (p *fakePostGame) ShowPostGameUI(stats domain.GameStatistics, isMatchComplete bool) {
	p.shown++
	p.lastStats = stats
	p.complete = isMatchComplete
}

func (p *fakePostGame) HidePostGameUI() { p.hidden++ }

type fakeMovement struct {
	enabled bool
	calls   int
}

func (m *fakeMovement) SetEnabled(enabled bool) {
	m.enabled = enabled
	m.calls++
}

type fakeCountdown struct {
	shows    []time.Time
	onExpire func()
	resets   int
}

func (c *fakeCountdown) Show(end time.Time, onExpire func()) {
	c.shows = append(c.shows, end)
	c.onExpire = onExpire
}

func (c *fakeCountdown) Reset() { c.resets++ }

type fakeAudio struct{ beeps []bool }

func (a *fakeAudio) PlayCountdownBeep(isFinal bool) { a.beeps = append(a.beeps, isFinal) }

type paint struct {
	ClientID string
	Team     domain.Team
}

type fakeTeams struct {
	painted []paint
	locked  map[string]domain.Team
}

func (t *fakeTeams) PaintSide(id string, team domain.Team, _ domain.TeamColor) {
	t.painted = append(t.painted, paint{ClientID: id, Team: team})
}

func (t *fakeTeams) LockTeam(id string, team domain.Team) {
	if t.locked == nil {
		t.locked = map[string]domain.Team{}
	}
	t.locked[id] = team
}

type fakeMover struct{ teleports []domain.Transform }

func (m *fakeMover) Teleport(to domain.Transform) { m.teleports = append(m.teleports, to) }

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

// harness is a fully wired authority with every collaborator faked.
type harness struct {
	role      *replica.Role
	clock     *manualClock
	bus       *MemoryBus
	sessions  *MemorySessionStore
	stats     *Statistics
	score     *Scoreboard
	ball      *fakeBall
	spawns    *fakeSpawns
	postGame  *fakePostGame
	movement  *fakeMovement
	countdown *fakeCountdown
	audio     *fakeAudio
	teams     *fakeTeams
	logger    *recordingLogger
	positions map[string]domain.Vec3
	c         *Controller
}

func newHarness(t *testing.T, clientIDs ...string) *harness {
	t.Helper()

	h := &harness{
		role:      replica.NewRole(true),
		clock:     newManualClock(),
		bus:       NewMemoryBus(),
		sessions:  NewMemorySessionStore(),
		stats:     NewStatistics(3),
		ball:      &fakeBall{},
		postGame:  &fakePostGame{},
		movement:  &fakeMovement{},
		countdown: &fakeCountdown{},
		audio:     &fakeAudio{},
		teams:     &fakeTeams{},
		logger:    &recordingLogger{},
		positions: map[string]domain.Vec3{},
		spawns: &fakeSpawns{
			players: map[domain.Team][]domain.Transform{
				domain.TeamA: {{Position: domain.Vec3{Z: -2}}, {Position: domain.Vec3{X: 1, Z: -2}}},
				domain.TeamB: {{Position: domain.Vec3{Z: 2}}, {Position: domain.Vec3{X: 1, Z: 2}}},
			},
			spectators: []domain.Transform{{Position: domain.Vec3{X: 5}}},
		},
	}
	h.score = NewScoreboard(h.role, nil, h.logger)

	opts := DefaultOptions()
	opts.Clock = h.clock.Now
	opts.Rng = rand.New(rand.NewSource(7))

	h.c = NewController(h.role, opts, Collaborators{
		Ball:      h.ball,
		Spawns:    h.spawns,
		Sessions:  h.sessions,
		Stats:     h.stats,
		Score:     h.score,
		PostGame:  h.postGame,
		Movement:  h.movement,
		Countdown: h.countdown,
		Audio:     h.audio,
		Teams:     h.teams,
		Bus:       h.bus,
	}, h.logger)
	t.Cleanup(h.c.Close)

	for _, id := range clientIDs {
		h.sessions.Load(domain.PlayerRecord{ClientID: id, DisplayName: id})
	}
	h.c.SetRoster(clientIDs)
	h.c.SetPositionSource(func(id string) (domain.Vec3, bool) {
		p, ok := h.positions[id]
		return p, ok
	})
	return h
}

// startSet runs a match start and the full countdown.
func (h *harness) startSet(t *testing.T) {
	t.Helper()
	if err := h.c.StartMatch(); err != nil {
		t.Fatalf("StartMatch error: %v", err)
	}
	h.clock.Advance(h.c.Options().CountdownDuration)
	if err := h.c.Tick(h.clock.Now()); err != nil {
		t.Fatalf("Tick error: %v", err)
	}
	if got := h.c.Phase(); got != domain.PhaseInGame {
		t.Fatalf("phase = %s, want %s", got, domain.PhaseInGame)
	}
}

func (h *harness) scorePoints(t *testing.T, team domain.Team, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.score.AddPoint(team); err != nil {
			t.Fatalf("AddPoint error: %v", err)
		}
	}
}

// phaseRecorder collects every callback in order.
type phaseRecorder struct {
	phases []domain.Phase
	times  []time.Duration
	colors int
}

func (r *phaseRecorder) OnPhaseChanged(p domain.Phase)            { r.phases = append(r.phases, p) }
func (r *phaseRecorder) OnPhaseTimeUpdate(left time.Duration)     { r.times = append(r.times, left) }
func (r *phaseRecorder) OnTeamColorUpdated(_, _ domain.TeamColor) { r.colors++ }
