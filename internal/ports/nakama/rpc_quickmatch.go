package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"tabletennis/internal/app"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// QuickMatchResponse is the payload returned to clients when requesting a match.
type QuickMatchResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
}

// ResumeMatchRequest carries the token a client received with an authority handoff.
type ResumeMatchRequest struct {
	ResumeToken string `json:"resume_token"`
}

// matchFinder is the part of runtime.NakamaModule the match RPCs need.
type matchFinder interface {
	MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error)
	MatchList(ctx context.Context, limit int, authoritative bool, label string, minSize, maxSize *int, query string) ([]*api.Match, error)
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer, tokens *app.ResumeTokenService, maxPlayers int) error {
	if err := initializer.RegisterRpc(RpcQuickMatch, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		return quickMatch(ctx, logger, nk, maxPlayers)
	}); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcResumeMatch, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		return resumeMatch(ctx, logger, nk, tokens, payload)
	})
}

// quickMatch joins a lobby that still has room or creates a new one.
func quickMatch(ctx context.Context, logger runtime.Logger, nk matchFinder, maxPlayers int) (string, error) {
	query := fmt.Sprintf("+label.%s:%s +label.%s:>=1 +label.%s:%s",
		MatchLabelKey_Game, matchLabelGame,
		MatchLabelKey_OpenSlots,
		MatchLabelKey_Phase, "pregame")

	limit := 10
	authoritative := true

	minSize := 1
	maxSize := maxPlayers - 1

	matches, err := nk.MatchList(ctx, limit, authoritative, "", &minSize, &maxSize, query)
	if err != nil {
		logger.Error("MatchList error: %v", err)
		return "", err
	}

	if len(matches) > 0 {
		return marshalQuickMatch(QuickMatchResponse{MatchID: matches[0].MatchId, IsNew: false})
	}

	matchID, err := nk.MatchCreate(ctx, MatchNameTableTennis, map[string]interface{}{})
	if err != nil {
		logger.Error("MatchCreate error: %v", err)
		return "", err
	}
	return marshalQuickMatch(QuickMatchResponse{MatchID: matchID, IsNew: true})
}

// resumeMatch continues a handed off match. Every client of the old match calls
// it with the same token; the first call creates the match, later calls find it
// by lineage.
func resumeMatch(ctx context.Context, logger runtime.Logger, nk matchFinder, tokens *app.ResumeTokenService, payload string) (string, error) {
	var req ResumeMatchRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("invalid resume request", 3) // INVALID_ARGUMENT
	}

	lineage, _, err := tokens.Verify(req.ResumeToken)
	if err != nil {
		logger.Warn("ResumeMatch: %v", err)
		return "", runtime.NewError("invalid resume token", 16) // UNAUTHENTICATED
	}

	query := fmt.Sprintf("+label.%s:%q", MatchLabelKey_Lineage, lineage)
	matches, err := nk.MatchList(ctx, 1, true, "", nil, nil, query)
	if err != nil {
		logger.Error("MatchList error: %v", err)
		return "", err
	}
	if len(matches) > 0 {
		return marshalQuickMatch(QuickMatchResponse{MatchID: matches[0].MatchId, IsNew: false})
	}

	matchID, err := nk.MatchCreate(ctx, MatchNameTableTennis, map[string]interface{}{ParamResumeToken: req.ResumeToken})
	if err != nil {
		logger.Error("MatchCreate error: %v", err)
		return "", err
	}
	logger.Info("ResumeMatch: Lineage %s resumed as %s", lineage, matchID)
	return marshalQuickMatch(QuickMatchResponse{MatchID: matchID, IsNew: true})
}

func marshalQuickMatch(resp QuickMatchResponse) (string, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
