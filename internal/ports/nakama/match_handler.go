package nakama

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"tabletennis/internal/app"
	"tabletennis/internal/config"
	"tabletennis/internal/domain"
	"tabletennis/internal/replica"
	"tabletennis/internal/spawn"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MatchState holds the authoritative runtime state for the Nakama match handler.
type MatchState struct {
	Tick      int64              `json:"tick"`       // Current tick of the match loop
	Lineage   string             `json:"lineage"`    // Stable id shared by every authority of the same match
	Config    config.MatchConfig `json:"config"`     // Rules in effect
	Roster    []string           `json:"roster"`     // Connected user IDs in join order
	Resumed   bool               `json:"resumed"`    // Whether the match continues a handed off one
	HandedOff bool               `json:"handed_off"` // Whether authority was handed away; the match ends next tick

	Presences map[string]runtime.Presence `json:"-"` // Map UserId -> Presence for targeted messaging
	Positions map[string]domain.Vec3      `json:"-"` // Last reported avatar positions
	Limiters  map[string]*rate.Limiter    `json:"-"` // Per-user client message budget

	Role       *replica.Role           `json:"-"`
	Controller *app.Controller         `json:"-"`
	Migration  *app.HostMigration      `json:"-"`
	Scoreboard *app.Scoreboard         `json:"-"`
	Stats      *app.Statistics         `json:"-"`
	Sessions   *app.MemorySessionStore `json:"-"`
	Spawner    *spawn.Spawner          `json:"-"`
	Bus        *matchBus               `json:"-"`
	Archive    *SessionArchive         `json:"-"` // nil when storage is unavailable
	Resume     *pendingResume          `json:"-"` // Snapshot restored on the first tick

	label string
}

// pendingResume is a verified handoff waiting for the first tick.
type pendingResume struct {
	phase domain.Phase
	snap  *app.Snapshot
}

// OpenSlots returns how many more players can join.
func (ms *MatchState) OpenSlots() int {
	return max(ms.Config.MaxPlayers-len(ms.Presences), 0)
}

func (ms *MatchState) isConnected(userID string) bool {
	_, ok := ms.Presences[userID]
	return ok
}

func (ms *MatchState) positionOf(userID string) (domain.Vec3, bool) {
	pos, ok := ms.Positions[userID]
	return pos, ok
}

// newMatchState wires the match core for one match.
func newMatchState(cfg config.MatchConfig, lineage string, layout *spawn.Layout, archive *SessionArchive, now func() time.Time, logger runtime.Logger) *MatchState {
	state := &MatchState{
		Lineage:   lineage,
		Config:    cfg,
		Presences: make(map[string]runtime.Presence),
		Positions: make(map[string]domain.Vec3),
		Limiters:  make(map[string]*rate.Limiter),
		Role:      replica.NewRole(true),
		Stats:     app.NewStatistics(cfg.SetsToWin),
		Sessions:  app.NewMemorySessionStore(),
		Spawner:   spawn.NewSpawner(layout),
		Archive:   archive,
	}
	state.Bus = newMatchBus(state.isConnected)
	state.Scoreboard = app.NewScoreboard(state.Role, state.Bus, logger)

	presenter := app.NewBroadcastPresenter(state.Bus, logger)
	state.Controller = app.NewController(state.Role, optionsFromConfig(cfg, now), app.Collaborators{
		Ball:      presenter,
		Spawns:    state.Spawner,
		Sessions:  state.Sessions,
		Stats:     state.Stats,
		Score:     state.Scoreboard,
		PostGame:  presenter,
		Countdown: presenter,
		Audio:     presenter,
		Teams:     presenter,
		Bus:       state.Bus,
	}, logger)
	state.Controller.SetPositionSource(state.positionOf)
	state.Migration = app.NewHostMigration(state.Controller, logger)
	return state
}

// optionsFromConfig converts the loaded configuration into controller rules.
func optionsFromConfig(cfg config.MatchConfig, now func() time.Time) app.Options {
	return app.Options{
		CountdownDuration: cfg.CountdownDuration(),
		SetDuration:       cfg.SetDuration(),
		PointsPerSet:      cfg.PointsPerSet,
		SetsToWin:         cfg.SetsToWin,
		Mode:              cfg.GameMode,
		Palette:           domain.DefaultPalette,
		Clock:             now,
	}
}

type matchHandler struct {
	cfg    config.MatchConfig
	layout *spawn.Layout
	tokens *app.ResumeTokenService
	now    func() time.Time
}

func newMatchHandler(cfg config.MatchConfig, layout *spawn.Layout, tokens *app.ResumeTokenService) *matchHandler {
	return &matchHandler{cfg: cfg, layout: layout, tokens: tokens, now: time.Now}
}

// MatchInit is called when the match is created. A resume_token param continues
// the match it was signed for.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing match handler.")

	lineage := uuid.NewString()
	var resume *pendingResume
	if raw, _ := params[ParamResumeToken].(string); raw != "" {
		resumed, snap, err := mh.tokens.Verify(raw)
		if err != nil {
			logger.Error("MatchInit: Rejecting resume: %v", err)
			return nil, 0, ""
		}
		lineage = resumed
		resume = &pendingResume{phase: snap.Phase, snap: snap}
		logger.Info("MatchInit: Resuming lineage %s in phase %s", lineage, snap.Phase)
	}

	var archive *SessionArchive
	if nk != nil {
		archive = NewSessionArchive(nk)
	}

	state := newMatchState(mh.cfg, lineage, mh.layout, archive, mh.now, logger)
	state.Resume = resume
	state.Resumed = resume != nil

	label, err := matchLabel(state)
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}
	state.label = label

	return state, mh.cfg.TickRate, label
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	if matchState.HandedOff {
		return state, false, "Match handed off"
	}
	if !matchState.isConnected(presence.GetUserId()) && matchState.OpenSlots() <= 0 {
		return state, false, "Match full"
	}
	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Presences[userID] = p
		if !slices.Contains(matchState.Roster, userID) {
			matchState.Roster = append(matchState.Roster, userID)
		}
		matchState.Limiters[userID] = rate.NewLimiter(rate.Limit(matchState.Config.ClientRequestsPerSecond), matchState.Config.ClientRequestBurst)
		mh.loadSession(ctx, matchState, logger, p)
		logger.Debug("MatchJoin: User %s joined (%d connected).", userID, len(matchState.Presences))
	}
	matchState.Controller.SetRoster(matchState.Roster)

	phase := matchState.Controller.Phase()
	for _, p := range presences {
		mh.sendSnapshot(matchState, dispatcher, logger, p)
		matchState.Controller.Respawner().Respawn(p.GetUserId(), phase)
	}

	mh.flush(matchState, dispatcher, logger)
	mh.persistSessions(ctx, matchState, logger)
	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

// loadSession gives a joining user a session record. In a resumed match the
// record the user had before the handoff is restored from storage.
func (mh *matchHandler) loadSession(ctx context.Context, state *MatchState, logger runtime.Logger, p runtime.Presence) {
	userID := p.GetUserId()
	if _, ok := state.Sessions.GetPlayerData(userID); ok {
		return
	}

	// Rejoining players and players of a resumed match get their stored record back.
	if state.Archive != nil {
		record, ok, err := state.Archive.Load(ctx, state.Lineage, userID)
		if err != nil {
			logger.Warn("MatchJoin: Could not restore session of %s: %v", userID, err)
		} else if ok {
			state.Sessions.Load(record)
			return
		}
	}

	state.Sessions.SetPlayerData(userID, domain.PlayerRecord{DisplayName: p.GetUsername()})
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	// Records of leaving players stay in storage for a rejoin.
	mh.persistSessions(ctx, matchState, logger)
	for _, p := range presences {
		userID := p.GetUserId()
		matchState.Sessions.Remove(userID)
		delete(matchState.Presences, userID)
		delete(matchState.Positions, userID)
		delete(matchState.Limiters, userID)
		matchState.Roster = slices.DeleteFunc(matchState.Roster, func(id string) bool { return id == userID })
		logger.Debug("MatchLeave: User %s left.", userID)
	}
	matchState.Controller.SetRoster(matchState.Roster)

	if len(matchState.Presences) == 0 {
		logger.Info("MatchLeave: Terminating empty match.")
		matchState.Controller.Close()
		return nil
	}

	mh.flush(matchState, dispatcher, logger)
	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	if matchState.HandedOff {
		logger.Info("MatchLoop: Authority handed off, ending match.")
		matchState.Controller.Close()
		return nil
	}

	matchState.Tick = tick
	now := mh.now()

	if !matchState.Migration.Consumed() {
		priorPhase := domain.PhasePreGame
		var snap *app.Snapshot
		if matchState.Resume != nil {
			priorPhase, snap = matchState.Resume.phase, matchState.Resume.snap
			matchState.Resume = nil
		}
		if err := matchState.Migration.OnNewAuthoritySpawned(priorPhase, snap, now); err != nil {
			logger.Error("MatchLoop: Failed to take authority: %v", err)
		}
	}

	for _, msg := range messages {
		mh.handleMessage(matchState, dispatcher, logger, msg, now)
	}

	if err := matchState.Controller.Tick(now); err != nil {
		logger.Error("MatchLoop: Tick failed: %v", err)
	}

	mh.flush(matchState, dispatcher, logger)
	mh.persistSessions(ctx, matchState, logger)
	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) handleMessage(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData, now time.Time) {
	senderID := msg.GetUserId()
	if limiter, ok := state.Limiters[senderID]; ok && !limiter.AllowN(now, 1) {
		logger.Warn("MatchLoop: Dropping opcode %d from %s, rate limited", msg.GetOpCode(), senderID)
		mh.sendError(state, dispatcher, logger, senderID, 429, "too many requests")
		return
	}

	request, err := decodeRequest(msg.GetData())
	if err != nil {
		logger.Warn("MatchLoop: Invalid payload for opcode %d from %s: %v", msg.GetOpCode(), senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, "invalid payload")
		return
	}

	c := state.Controller
	switch msg.GetOpCode() {
	case OpStartMatch:
		err = c.StartMatch()
	case OpNextSet:
		err = c.OnNextSetRequested()
	case OpSpectate:
		err = c.OnSpectatorModeRequested(senderID)
	case OpExitMatch:
		err = c.OnExitRequested()
	case OpReportPoint:
		err = mh.handleReportPoint(state, logger, request)
	case OpAvatarPosition:
		var pos domain.Vec3
		if pos, err = positionFromRequest(request); err == nil {
			state.Positions[senderID] = pos
		}
	default:
		logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		return
	}

	if err != nil {
		logger.Warn("MatchLoop: Opcode %d from %s failed: %v", msg.GetOpCode(), senderID, err)
		code := 400
		if errors.Is(err, app.ErrNotAuthority) {
			code = 409
		}
		mh.sendError(state, dispatcher, logger, senderID, code, err.Error())
	}
}

// handleReportPoint counts a finished rally for a team. Reports outside a set are ignored.
func (mh *matchHandler) handleReportPoint(state *MatchState, logger runtime.Logger, request *structpb.Struct) error {
	team, err := teamFromRequest(request)
	if err != nil {
		return err
	}
	if phase := state.Controller.Phase(); phase != domain.PhaseInGame {
		logger.Debug("ReportPoint: Ignored in phase %s", phase)
		return nil
	}
	state.Stats.RecordRally()
	if err := state.Scoreboard.AddPoint(team); err != nil {
		return err
	}
	logger.Debug("ReportPoint: Team %s now on %d", team, state.Scoreboard.Current().Of(team))
	return nil
}

// flush dispatches the events the match core published during this callback.
func (mh *matchHandler) flush(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	for _, ev := range state.Bus.drain() {
		mh.broadcastEvent(state, dispatcher, logger, ev)
	}
}

// broadcastEvent handles the conversion and dispatching of app events to Nakama.
func (mh *matchHandler) broadcastEvent(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	opCode, payload, err := eventToMessage(ev)
	if err != nil {
		logger.Warn("Event: %v", err)
		return
	}

	bytes, err := proto.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal event %v: %v", ev.Kind, err)
		return
	}

	// Determine recipients (default to broadcast)
	var recipients []runtime.Presence
	if len(ev.Recipients) > 0 {
		for _, uid := range ev.Recipients {
			if p, ok := state.Presences[uid]; ok {
				recipients = append(recipients, p)
			}
		}

		// A targeted event whose recipients left must not reach everyone else.
		if len(recipients) == 0 {
			return
		}
	}

	if err := dispatcher.BroadcastMessage(opCode, bytes, recipients, nil, true); err != nil {
		logger.Error("Failed to dispatch event %v: %v", ev.Kind, err)
	}
}

// sendSnapshot sends the full match view to a single presence.
func (mh *matchHandler) sendSnapshot(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, presence runtime.Presence) {
	snapshot, err := snapshotMessage(state, presence.GetUserId())
	if err != nil {
		logger.Error("Failed to build snapshot: %v", err)
		return
	}
	bytes, err := proto.Marshal(snapshot)
	if err != nil {
		logger.Error("Failed to marshal snapshot: %v", err)
		return
	}
	if err := dispatcher.BroadcastMessage(OpMatchSnapshot, bytes, []runtime.Presence{presence}, nil, true); err != nil {
		logger.Error("Failed to send snapshot to %s: %v", presence.GetUserId(), err)
	}
}

// sendError sends a match error to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	payload, err := errorMessage(code, message)
	if err != nil {
		logger.Error("Failed to build error payload: %v", err)
		return
	}
	bytes, err := proto.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal error payload: %v", err)
		return
	}

	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("Cannot send error to %s: Presence not found", userID)
		return
	}

	dispatcher.BroadcastMessage(OpMatchError, bytes, []runtime.Presence{presence}, nil, true)
}

// persistSessions writes changed session records to storage.
func (mh *matchHandler) persistSessions(ctx context.Context, state *MatchState, logger runtime.Logger) {
	dirty := state.Sessions.TakeDirty()
	if len(dirty) == 0 || state.Archive == nil {
		return
	}
	if err := state.Archive.Save(ctx, state.Lineage, dirty); err != nil {
		logger.Error("Sessions: %v", err)
	}
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	label, err := matchLabel(state)
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if label == state.label {
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
		return
	}
	state.label = label
}

// handOff snapshots the match, signs it into a resume token and tells every
// client where to continue. The local node stops being the authority.
func (mh *matchHandler) handOff(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) (string, error) {
	snap := state.Migration.OnAuthorityAboutToChange(mh.now())
	token, err := mh.tokens.Sign(state.Lineage, snap)
	if err != nil {
		return "", err
	}

	state.HandedOff = true
	state.Role.Demote()
	if err := state.Bus.Broadcast(app.Event{
		Kind:    app.EventAuthorityHandoff,
		Payload: app.AuthorityHandoffPayload{ResumeToken: token},
	}); err != nil {
		logger.Warn("Handoff: %v", err)
	}
	mh.flush(state, dispatcher, logger)

	if state.Archive != nil {
		state.Sessions.TakeDirty()
		if err := state.Archive.Save(ctx, state.Lineage, state.Sessions.All()); err != nil {
			logger.Error("Handoff: %v", err)
		}
	}
	logger.Info("Handoff: Lineage %s handed off in phase %s", state.Lineage, snap.Phase)
	return token, nil
}

// MatchTerminate hands the match off so clients can resume it elsewhere.
func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}
	logger.Debug("MatchTerminate: Match terminating with %d seconds grace", graceSeconds)

	if !matchState.HandedOff {
		if _, err := mh.handOff(ctx, matchState, dispatcher, logger); err != nil {
			logger.Error("MatchTerminate: Handoff failed: %v", err)
		}
	}
	return matchState
}

// MatchSignal handles SignalHandoff and replies with the resume token.
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, ""
	}
	if data != SignalHandoff {
		logger.Warn("MatchSignal: Unknown signal %q", data)
		return matchState, ""
	}
	if matchState.HandedOff {
		return matchState, ""
	}

	token, err := mh.handOff(ctx, matchState, dispatcher, logger)
	if err != nil {
		logger.Error("MatchSignal: Handoff failed: %v", err)
		return matchState, ""
	}
	return matchState, token
}
