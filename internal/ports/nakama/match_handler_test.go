package nakama

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tabletennis/internal/app"
	"tabletennis/internal/config"
	"tabletennis/internal/domain"
	"tabletennis/internal/spawn"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

type sentMessage struct {
	opCode     int64
	data       []byte
	recipients []string // nil for broadcast
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	sent         []sentMessage
	labelUpdates int
	lastLabel    string
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	msg := sentMessage{opCode: opCode, data: append([]byte(nil), data...)}
	for _, p := range presences {
		msg.recipients = append(msg.recipients, p.GetUserId())
	}
	md.sent = append(md.sent, msg)
	return nil
}

func (md *mockDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return nil
}

func (md *mockDispatcher) MatchKick(presences []runtime.Presence) error {
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labelUpdates++
	md.lastLabel = label
	return nil
}

func (md *mockDispatcher) ofOp(opCode int64) []sentMessage {
	var out []sentMessage
	for _, msg := range md.sent {
		if msg.opCode == opCode {
			out = append(out, msg)
		}
	}
	return out
}

func (md *mockDispatcher) reset() { md.sent = nil }

// mockPresence overrides the identity getters of runtime.Presence.
type mockPresence struct {
	runtime.Presence
	userID   string
	username string
}

func (p mockPresence) GetUserId() string    { return p.userID }
func (p mockPresence) GetUsername() string  { return p.username }
func (p mockPresence) GetSessionId() string { return "session-" + p.userID }

type mockMatchData struct {
	runtime.MatchData
	userID string
	opCode int64
	data   []byte
}

func (m mockMatchData) GetUserId() string { return m.userID }
func (m mockMatchData) GetOpCode() int64  { return m.opCode }
func (m mockMatchData) GetData() []byte   { return m.data }

// fakeNakama keeps storage objects and matches in memory.
type fakeNakama struct {
	runtime.NakamaModule
	objects map[string]string
	writes  int
	matches []*api.Match
	created []map[string]interface{}
}

func newFakeNakama() *fakeNakama {
	return &fakeNakama{objects: make(map[string]string)}
}

func storageKey(collection, key, userID string) string {
	return collection + "/" + key + "/" + userID
}

func (f *fakeNakama) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	var out []*api.StorageObject
	for _, r := range reads {
		if v, ok := f.objects[storageKey(r.Collection, r.Key, r.UserID)]; ok {
			out = append(out, &api.StorageObject{Collection: r.Collection, Key: r.Key, UserId: r.UserID, Value: v})
		}
	}
	return out, nil
}

func (f *fakeNakama) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	acks := make([]*api.StorageObjectAck, 0, len(writes))
	for _, w := range writes {
		f.writes++
		f.objects[storageKey(w.Collection, w.Key, w.UserID)] = w.Value
		acks = append(acks, &api.StorageObjectAck{Collection: w.Collection, Key: w.Key, UserId: w.UserID})
	}
	return acks, nil
}

func (f *fakeNakama) MatchList(ctx context.Context, limit int, authoritative bool, label string, minSize, maxSize *int, query string) ([]*api.Match, error) {
	return f.matches, nil
}

func (f *fakeNakama) MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error) {
	f.created = append(f.created, params)
	return "match-new", nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testTokens() *app.ResumeTokenService {
	return app.NewResumeTokenService("test-secret", resumeTokenIssuer, time.Minute)
}

func newTestHandler(cfg config.MatchConfig, clock *testClock) *matchHandler {
	mh := newMatchHandler(cfg, spawn.DefaultLayout(), testTokens())
	mh.now = clock.Now
	return mh
}

// matchFixture drives one match through the handler callbacks.
type matchFixture struct {
	t     *testing.T
	mh    *matchHandler
	nk    *fakeNakama
	disp  *mockDispatcher
	clock *testClock
	state *MatchState
	tick  int64
}

func newMatchFixture(t *testing.T, cfg config.MatchConfig, params map[string]interface{}) *matchFixture {
	t.Helper()
	clock := &testClock{now: time.Unix(1000, 0)}
	return startFixture(t, newTestHandler(cfg, clock), newFakeNakama(), clock, params)
}

func startFixture(t *testing.T, mh *matchHandler, nk *fakeNakama, clock *testClock, params map[string]interface{}) *matchFixture {
	t.Helper()
	state, tickRate, label := mh.MatchInit(context.Background(), noopLogger{}, nil, nk, params)
	require.NotNil(t, state)
	require.Equal(t, mh.cfg.TickRate, tickRate)
	require.NotEmpty(t, label)
	return &matchFixture{t: t, mh: mh, nk: nk, disp: &mockDispatcher{}, clock: clock, state: state.(*MatchState)}
}

func (f *matchFixture) join(userIDs ...string) {
	presences := make([]runtime.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		presences = append(presences, mockPresence{userID: id, username: "name-" + id})
	}
	f.mh.MatchJoin(context.Background(), noopLogger{}, nil, f.nk, f.disp, f.tick, f.state, presences)
}

func (f *matchFixture) loop(messages ...runtime.MatchData) interface{} {
	f.tick++
	return f.mh.MatchLoop(context.Background(), noopLogger{}, nil, f.nk, f.disp, f.tick, f.state, messages)
}

func message(t *testing.T, userID string, opCode int64, fields map[string]interface{}) runtime.MatchData {
	t.Helper()
	var data []byte
	if fields != nil {
		s, err := structpb.NewStruct(fields)
		require.NoError(t, err)
		data, err = proto.Marshal(s)
		require.NoError(t, err)
	}
	return mockMatchData{userID: userID, opCode: opCode, data: data}
}

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	s := &structpb.Struct{}
	require.NoError(t, proto.Unmarshal(data, s))
	return s.AsMap()
}

func labelOf(t *testing.T, label string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(label), &out))
	return out
}

// playToInGame seats p1 on side A and p2 on side B and runs the countdown out.
func (f *matchFixture) playToInGame() {
	t := f.t
	f.join("p1", "p2")
	f.loop(
		message(t, "p1", OpAvatarPosition, map[string]interface{}{"x": 0, "y": 0, "z": -1.5}),
		message(t, "p2", OpAvatarPosition, map[string]interface{}{"x": 0, "y": 0, "z": 1.5}),
	)
	f.loop(message(t, "p1", OpStartMatch, nil))
	require.Equal(t, domain.PhaseCountdown, f.state.Controller.Phase())

	f.clock.Advance(f.state.Config.CountdownDuration())
	f.loop()
	require.Equal(t, domain.PhaseInGame, f.state.Controller.Phase())
}

func TestMatchInitLabel(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)

	label := labelOf(t, f.state.label)
	assert.Equal(t, "tabletennis", label["game"])
	assert.Equal(t, float64(4), label["open"])
	assert.Equal(t, "pregame", label["phase"])
	assert.Equal(t, f.state.Lineage, label["lineage"])
	assert.NotEmpty(t, f.state.Lineage)
}

func TestMatchInitRejectsBadResumeToken(t *testing.T) {
	clock := &testClock{now: time.Unix(1000, 0)}
	mh := newTestHandler(config.Default(), clock)

	state, _, label := mh.MatchInit(context.Background(), noopLogger{}, nil, nil, map[string]interface{}{ParamResumeToken: "garbage"})
	assert.Nil(t, state)
	assert.Empty(t, label)
}

func TestMatchJoinSendsPrivateSnapshotAndRespawn(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.join("p1")

	require.Len(t, f.disp.sent, 2)
	assert.Equal(t, OpMatchSnapshot, f.disp.sent[0].opCode)
	assert.Equal(t, []string{"p1"}, f.disp.sent[0].recipients)
	assert.Equal(t, OpRespawn, f.disp.sent[1].opCode)
	assert.Equal(t, []string{"p1"}, f.disp.sent[1].recipients)

	snapshot := decode(t, f.disp.sent[0].data)
	assert.Equal(t, "pregame", snapshot["phase"])
	assert.Equal(t, "p1", snapshot["user_id"])
	players := snapshot["players"].([]interface{})
	require.Len(t, players, 1)
	assert.Equal(t, "name-p1", players[0].(map[string]interface{})["display_name"])

	assert.Equal(t, 1, f.disp.labelUpdates)
	assert.Equal(t, float64(3), labelOf(t, f.disp.lastLabel)["open"])
	assert.Equal(t, 1, f.nk.writes, "new session record persisted")
}

func TestMatchJoinAttemptRespectsMaxPlayers(t *testing.T) {
	cfg := config.Default()
	cfg.MaxPlayers = 2
	f := newMatchFixture(t, cfg, nil)
	f.join("p1", "p2")

	_, ok, reason := f.mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, f.disp, 0, f.state, mockPresence{userID: "p3"}, nil)
	assert.False(t, ok)
	assert.Equal(t, "Match full", reason)

	_, ok, _ = f.mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, f.disp, 0, f.state, mockPresence{userID: "p1"}, nil)
	assert.True(t, ok, "a connected user may rejoin")
}

func TestMatchLoopPlaysASet(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.playToInGame()

	teams := f.state.Controller.Teams()
	assert.Equal(t, domain.TeamA, teams.TeamOf("p1"))
	assert.Equal(t, domain.TeamB, teams.TeamOf("p2"))
	assert.True(t, teams.Locked())
	assert.NotEmpty(t, f.disp.ofOp(OpTeamLocked))
	assert.NotEmpty(t, f.disp.ofOp(OpCountdownStarted))

	f.disp.reset()
	points := make([]runtime.MatchData, 0, 11)
	for i := 0; i < 11; i++ {
		points = append(points, message(t, "p1", OpReportPoint, map[string]interface{}{"team": "a"}))
	}
	f.loop(points...)

	assert.Equal(t, domain.PhasePostGame, f.state.Controller.Phase())
	stats := f.state.Stats.GetCurrentStatistics()
	assert.Equal(t, 1, stats.SetsWonByA)
	assert.Equal(t, 11, stats.RalliesThisSet)

	shown := f.disp.ofOp(OpPostGameShown)
	require.Len(t, shown, 1)
	assert.Nil(t, shown[0].recipients)
	payload := decode(t, shown[0].data)
	assert.Equal(t, false, payload["is_match_complete"])
	assert.Len(t, f.disp.ofOp(OpScoreUpdated), 11)
	assert.Len(t, f.disp.ofOp(OpBallsDespawned), 1)
	assert.Equal(t, "postgame", labelOf(t, f.disp.lastLabel)["phase"])
}

func TestMatchLoopSetTimerExpiry(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.playToInGame()

	f.loop(message(t, "p2", OpReportPoint, map[string]interface{}{"team": "b"}))
	f.clock.Advance(f.state.Config.SetDuration() + time.Second)
	f.loop()

	assert.Equal(t, domain.PhasePostGame, f.state.Controller.Phase())
	assert.Equal(t, 1, f.state.Stats.GetCurrentStatistics().SetsWonByB)
}

func TestReportPointOutsideSetIsIgnored(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.join("p1")
	f.loop(message(t, "p1", OpReportPoint, map[string]interface{}{"team": "a"}))

	assert.Equal(t, domain.Score{}, f.state.Scoreboard.Current())
	assert.Empty(t, f.disp.ofOp(OpMatchError))
}

func TestBadRequestsSendPrivateErrors(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.join("p1", "p2")
	f.disp.reset()

	f.loop(
		message(t, "p1", OpReportPoint, nil),
		message(t, "p2", OpReportPoint, map[string]interface{}{"team": "c"}),
		mockMatchData{userID: "p1", opCode: OpAvatarPosition, data: []byte{0xff, 0xff}},
	)

	errs := f.disp.ofOp(OpMatchError)
	require.Len(t, errs, 3)
	assert.Equal(t, []string{"p1"}, errs[0].recipients)
	assert.Equal(t, []string{"p2"}, errs[1].recipients)
	assert.Equal(t, float64(400), decode(t, errs[0].data)["code"])
	assert.Equal(t, "invalid payload", decode(t, errs[2].data)["message"])
}

func TestClientMessagesAreRateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.ClientRequestsPerSecond = 1
	cfg.ClientRequestBurst = 1
	f := newMatchFixture(t, cfg, nil)
	f.join("p1")
	f.disp.reset()

	pos := map[string]interface{}{"x": 0, "y": 0, "z": 1}
	f.loop(message(t, "p1", OpAvatarPosition, pos), message(t, "p1", OpAvatarPosition, pos))

	errs := f.disp.ofOp(OpMatchError)
	require.Len(t, errs, 1)
	assert.Equal(t, float64(429), decode(t, errs[0].data)["code"])

	f.clock.Advance(time.Second)
	f.disp.reset()
	f.loop(message(t, "p1", OpAvatarPosition, pos))
	assert.Empty(t, f.disp.ofOp(OpMatchError))
}

func TestSpectateMovesPlayerToStands(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.join("p1")
	f.loop()
	f.disp.reset()

	f.loop(message(t, "p1", OpSpectate, nil))

	record, ok := f.state.Sessions.GetPlayerData("p1")
	require.True(t, ok)
	assert.True(t, record.IsSpectator)
	respawns := f.disp.ofOp(OpRespawn)
	require.Len(t, respawns, 1)
	assert.Equal(t, []string{"p1"}, respawns[0].recipients)
}

func TestMatchLeaveTerminatesEmptyMatch(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.join("p1", "p2")

	leave := func(id string) interface{} {
		return f.mh.MatchLeave(context.Background(), noopLogger{}, nil, f.nk, f.disp, 0, f.state, []runtime.Presence{mockPresence{userID: id}})
	}
	assert.NotNil(t, leave("p1"))
	assert.Equal(t, []string{"p2"}, f.state.Roster)
	assert.Nil(t, leave("p2"))
}

func TestRejoinRestoresStoredSession(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.playToInGame()

	f.mh.MatchLeave(context.Background(), noopLogger{}, nil, f.nk, f.disp, f.tick, f.state, []runtime.Presence{mockPresence{userID: "p2"}})
	_, ok := f.state.Sessions.GetPlayerData("p2")
	assert.False(t, ok, "leaving drops the in-memory record")

	f.join("p2")
	record, ok := f.state.Sessions.GetPlayerData("p2")
	require.True(t, ok)
	assert.Equal(t, domain.TeamB, record.Team)
	assert.Equal(t, 0, record.SeatIndex)
	assert.Equal(t, "name-p2", record.DisplayName)
}

func TestHandoffResumesOnOriginalTimeline(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.playToInGame()
	f.loop(message(t, "p1", OpReportPoint, map[string]interface{}{"team": "a"}))

	f.clock.Advance(f.state.Config.SetDuration() - 45*time.Second)
	f.disp.reset()
	_, token := f.mh.MatchSignal(context.Background(), noopLogger{}, nil, f.nk, f.disp, f.tick, f.state, SignalHandoff)
	require.NotEmpty(t, token)

	handoffs := f.disp.ofOp(OpAuthorityHandoff)
	require.Len(t, handoffs, 1)
	assert.Nil(t, handoffs[0].recipients)
	assert.Equal(t, token, decode(t, handoffs[0].data)["resume_token"])
	assert.Nil(t, f.loop(), "handed off match ends on the next tick")

	f.clock.Advance(5 * time.Second)
	next := startFixture(t, newTestHandler(config.Default(), f.clock), f.nk, f.clock, map[string]interface{}{ParamResumeToken: token})
	assert.Equal(t, f.state.Lineage, next.state.Lineage)
	next.loop()

	c := next.state.Controller
	assert.Equal(t, domain.PhaseInGame, c.Phase())
	assert.Equal(t, 40*time.Second, c.TimeLeft(f.clock.Now()))
	assert.Equal(t, domain.Score{TeamA: 1}, next.state.Scoreboard.Current())
	assert.Equal(t, domain.TeamA, c.Teams().TeamOf("p1"))

	next.join("p1")
	record, ok := next.state.Sessions.GetPlayerData("p1")
	require.True(t, ok)
	assert.Equal(t, domain.TeamA, record.Team)
	assert.Equal(t, "name-p1", record.DisplayName)
}

func TestMatchTerminateHandsOff(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	f.join("p1")
	f.loop()

	f.mh.MatchTerminate(context.Background(), noopLogger{}, nil, f.nk, f.disp, f.tick, f.state, 10)
	assert.True(t, f.state.HandedOff)
	assert.Len(t, f.disp.ofOp(OpAuthorityHandoff), 1)

	_, ok, reason := f.mh.MatchJoinAttempt(context.Background(), noopLogger{}, nil, nil, f.disp, 0, f.state, mockPresence{userID: "p2"}, nil)
	assert.False(t, ok)
	assert.Equal(t, "Match handed off", reason)
}

func TestUnknownSignalIsIgnored(t *testing.T) {
	f := newMatchFixture(t, config.Default(), nil)
	_, reply := f.mh.MatchSignal(context.Background(), noopLogger{}, nil, f.nk, f.disp, 0, f.state, "reboot")
	assert.Empty(t, reply)
	assert.False(t, f.state.HandedOff)
}
