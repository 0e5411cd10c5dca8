package nakama

import (
	"errors"
	"fmt"
	"time"

	"tabletennis/internal/app"
	"tabletennis/internal/domain"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var errMissingField = errors.New("missing field")

// eventOpCodes maps app events to their wire op code.
var eventOpCodes = map[app.EventKind]int64{
	app.EventPhaseChanged:     OpPhaseChanged,
	app.EventClockUpdated:     OpClockUpdated,
	app.EventTeamColors:       OpTeamColors,
	app.EventSideAssigned:     OpSideAssigned,
	app.EventTeamLocked:       OpTeamLocked,
	app.EventRespawn:          OpRespawn,
	app.EventCountdownStarted: OpCountdownStarted,
	app.EventCountdownBeep:    OpCountdownBeep,
	app.EventBallsDespawned:   OpBallsDespawned,
	app.EventPostGameShown:    OpPostGameShown,
	app.EventPostGameHidden:   OpPostGameHidden,
	app.EventScoreUpdated:     OpScoreUpdated,
	app.EventAuthorityHandoff: OpAuthorityHandoff,
}

// eventToMessage converts an app event into its op code and wire payload.
func eventToMessage(ev app.Event) (int64, *structpb.Struct, error) {
	opCode, ok := eventOpCodes[ev.Kind]
	if !ok {
		return 0, nil, fmt.Errorf("unknown event kind: %s", ev.Kind)
	}

	var fields map[string]interface{}
	switch p := ev.Payload.(type) {
	case app.PhaseChangedPayload:
		fields = map[string]interface{}{"previous": string(p.Previous), "phase": string(p.Phase)}
	case app.ClockUpdatedPayload:
		fields = clockFields(p.Clock)
	case app.TeamColorsPayload:
		fields = colorsFields(p.Colors)
	case app.SideAssignedPayload:
		fields = map[string]interface{}{"user_id": p.ClientID, "team": string(p.Team), "color": colorFields(p.Color)}
	case app.TeamLockedPayload:
		fields = map[string]interface{}{"user_id": p.ClientID, "team": string(p.Team)}
	case app.RespawnPayload:
		fields = map[string]interface{}{"transform": transformFields(p.Transform), "phase": string(p.Phase)}
	case app.CountdownStartedPayload:
		fields = map[string]interface{}{"end_time_ms": unixMillis(p.EndTime)}
	case app.CountdownBeepPayload:
		fields = map[string]interface{}{"is_final": p.IsFinal}
	case app.PostGameShownPayload:
		fields = map[string]interface{}{"stats": statsFields(p.Stats), "is_match_complete": p.IsMatchComplete}
	case app.ScoreUpdatedPayload:
		fields = scoreFields(p.Score)
	case app.AuthorityHandoffPayload:
		fields = map[string]interface{}{"resume_token": p.ResumeToken}
	case nil:
		fields = map[string]interface{}{}
	default:
		return 0, nil, fmt.Errorf("unexpected payload %T for event %s", ev.Payload, ev.Kind)
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build %s payload: %w", ev.Kind, err)
	}
	return opCode, msg, nil
}

// snapshotMessage is the full match view sent privately to a joining client.
func snapshotMessage(state *MatchState, userID string) (*structpb.Struct, error) {
	c := state.Controller
	fields := map[string]interface{}{
		"phase":   string(c.Phase()),
		"clock":   clockFields(c.Clock()),
		"colors":  colorsFields(c.TeamColors()),
		"score":   scoreFields(state.Scoreboard.Current()),
		"stats":   statsFields(state.Stats.GetCurrentStatistics()),
		"lineage": state.Lineage,
		"user_id": userID,
		"tick":    state.Tick,
	}

	players := make([]interface{}, 0, len(state.Roster))
	for _, id := range state.Roster {
		player := map[string]interface{}{
			"user_id": id,
			"team":    string(c.Teams().TeamOf(id)),
		}
		if rec, ok := state.Sessions.GetPlayerData(id); ok {
			player["display_name"] = rec.DisplayName
			player["is_spectator"] = rec.IsSpectator
			player["seat"] = rec.SeatIndex
		}
		players = append(players, player)
	}
	fields["players"] = players

	return structpb.NewStruct(fields)
}

func errorMessage(code int, message string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"code": code, "message": message})
}

// matchLabel renders the listing label used by quick match queries.
func matchLabel(state *MatchState) (string, error) {
	label, err := structpb.NewStruct(map[string]interface{}{
		MatchLabelKey_Game:      matchLabelGame,
		MatchLabelKey_OpenSlots: state.OpenSlots(),
		MatchLabelKey_Phase:     string(state.Controller.Phase()),
		MatchLabelKey_Lineage:   state.Lineage,
	})
	if err != nil {
		return "", err
	}
	labelBytes, err := (&protojson.MarshalOptions{EmitUnpopulated: true}).Marshal(label)
	if err != nil {
		return "", err
	}
	return string(labelBytes), nil
}

// decodeRequest reads a client payload. An empty payload is an empty request.
func decodeRequest(data []byte) (*structpb.Struct, error) {
	request := &structpb.Struct{}
	if len(data) == 0 {
		return request, nil
	}
	if err := proto.Unmarshal(data, request); err != nil {
		return nil, err
	}
	return request, nil
}

func teamFromRequest(request *structpb.Struct) (domain.Team, error) {
	v, ok := request.GetFields()["team"]
	if !ok {
		return domain.NoTeam, fmt.Errorf("team: %w", errMissingField)
	}
	switch team := domain.Team(v.GetStringValue()); team {
	case domain.TeamA, domain.TeamB:
		return team, nil
	default:
		return domain.NoTeam, fmt.Errorf("team %q: %w", team, app.ErrUnknownTeam)
	}
}

func positionFromRequest(request *structpb.Struct) (domain.Vec3, error) {
	fields := request.GetFields()
	z, ok := fields["z"]
	if !ok {
		return domain.Vec3{}, fmt.Errorf("z: %w", errMissingField)
	}
	return domain.Vec3{
		X: fields["x"].GetNumberValue(),
		Y: fields["y"].GetNumberValue(),
		Z: z.GetNumberValue(),
	}, nil
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func clockFields(clock domain.MatchClock) map[string]interface{} {
	return map[string]interface{}{
		"game_start_time_ms": unixMillis(clock.GameStartTime),
		"game_end_time_ms":   unixMillis(clock.GameEndTime),
	}
}

func colorFields(c domain.TeamColor) map[string]interface{} {
	return map[string]interface{}{"name": c.Name, "primary": c.Primary, "accent": c.Accent}
}

func colorsFields(colors domain.TeamColors) map[string]interface{} {
	return map[string]interface{}{
		"team_a": colorFields(colors.TeamA),
		"team_b": colorFields(colors.TeamB),
		"set":    colors.Set,
	}
}

func scoreFields(score domain.Score) map[string]interface{} {
	return map[string]interface{}{"team_a": score.TeamA, "team_b": score.TeamB}
}

func statsFields(stats domain.GameStatistics) map[string]interface{} {
	return map[string]interface{}{
		"sets_won_by_a":     stats.SetsWonByA,
		"sets_won_by_b":     stats.SetsWonByB,
		"sets_played":       stats.SetsPlayed,
		"rallies_this_set":  stats.RalliesThisSet,
		"is_match_complete": stats.IsMatchComplete,
	}
}

func transformFields(t domain.Transform) map[string]interface{} {
	return map[string]interface{}{
		"position": map[string]interface{}{"x": t.Position.X, "y": t.Position.Y, "z": t.Position.Z},
		"rotation": map[string]interface{}{"x": t.Rotation.X, "y": t.Rotation.Y, "z": t.Rotation.Z, "w": t.Rotation.W},
	}
}
