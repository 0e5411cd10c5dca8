package nakama

const (
	// RpcQuickMatch is the Nakama RPC id clients call to find or create a match in its lobby.
	RpcQuickMatch = "quick_match"

	// RpcResumeMatch is the Nakama RPC id clients call with a handoff token to continue a match
	// whose authority went away.
	RpcResumeMatch = "resume_match"

	// MatchNameTableTennis is the authoritative match handler name registered with Nakama.
	MatchNameTableTennis = "tabletennis_match"

	// SignalHandoff asks a running match to hand its state over and stop.
	SignalHandoff = "handoff"

	// ParamResumeToken is the MatchCreate param carrying a signed handoff snapshot.
	ParamResumeToken = "resume_token"

	// Match label keys.
	MatchLabelKey_Game      = "game"
	MatchLabelKey_OpenSlots = "open"
	MatchLabelKey_Phase     = "phase"
	MatchLabelKey_Lineage   = "lineage"

	matchLabelGame = "tabletennis"

	// sessionCollection stores per-user session records keyed by match lineage.
	sessionCollection = "match_sessions"

	// resumeTokenIssuer is the issuer claim of handoff tokens.
	resumeTokenIssuer = "tabletennis"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartMatch     int64 = 1
	OpNextSet        int64 = 2
	OpSpectate       int64 = 3
	OpExitMatch      int64 = 4
	OpReportPoint    int64 = 5
	OpAvatarPosition int64 = 6

	// Server -> Client events
	OpMatchSnapshot    int64 = 101 // send privately on join
	OpPhaseChanged     int64 = 102
	OpClockUpdated     int64 = 103
	OpTeamColors       int64 = 104
	OpSideAssigned     int64 = 105
	OpTeamLocked       int64 = 106
	OpRespawn          int64 = 107 // send privately
	OpCountdownStarted int64 = 108
	OpCountdownBeep    int64 = 109
	OpBallsDespawned   int64 = 110
	OpPostGameShown    int64 = 111
	OpPostGameHidden   int64 = 112
	OpScoreUpdated     int64 = 113
	OpAuthorityHandoff int64 = 114
	OpMatchError       int64 = 115 // send privately
)
