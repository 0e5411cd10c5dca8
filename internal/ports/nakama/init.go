package nakama

import (
	"context"
	"database/sql"
	"sync"

	"tabletennis/internal/app"
	"tabletennis/internal/config"
	"tabletennis/internal/spawn"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

const matchConfigPath = "data/match_config.json"

var (
	fallbackSecret     string
	fallbackSecretOnce sync.Once
)

// InitModule wires RPCs and match handlers for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	if err := config.LoadMatchConfig(matchConfigPath); err != nil {
		logger.Warn("InitModule: Could not load match config, using defaults: %v", err)
	}

	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	cfg, err := config.GetMatchConfig().ApplyEnv(env)
	if err != nil {
		logger.Warn("InitModule: %v", err)
	}

	layout := spawn.DefaultLayout()
	if cfg.SpawnLayoutPath != "" {
		if layout, err = spawn.LoadLayout(cfg.SpawnLayoutPath); err != nil {
			logger.Warn("InitModule: Could not load spawn layout, using built-in venue: %v", err)
			layout = spawn.DefaultLayout()
		}
	}

	tokens := app.NewResumeTokenService(resumeSecret(env, logger), resumeTokenIssuer, cfg.ResumeTokenTTL())

	if err := RegisterRPCs(initializer, tokens, cfg.MaxPlayers); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchNameTableTennis, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return newMatchHandler(cfg, layout, tokens), nil
	}); err != nil {
		return err
	}

	logger.Info("TableTennis Go module loaded (mode=%s, sets_to_win=%d, tick_rate=%d).", cfg.GameMode, cfg.SetsToWin, cfg.TickRate)
	return nil
}

// resumeSecret returns the configured signing secret. Without one, tokens are
// signed with a per-process secret and only resume on this node.
func resumeSecret(env map[string]string, logger runtime.Logger) string {
	if secret := env[config.EnvResumeSecret]; secret != "" {
		return secret
	}
	logger.Warn("InitModule: %s not set, resume tokens only work on this node", config.EnvResumeSecret)
	fallbackSecretOnce.Do(func() {
		fallbackSecret = uuid.NewString()
	})
	return fallbackSecret
}
