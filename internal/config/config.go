package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tabletennis/internal/domain"
)

// EnvPrefix namespaces the Nakama runtime environment keys read by ApplyEnv.
const EnvPrefix = "tabletennis_"

// EnvResumeSecret is the runtime env key holding the resume token signing secret.
const EnvResumeSecret = EnvPrefix + "resume_secret"

// MatchConfig holds the match rules and server limits. An empty
// SpawnLayoutPath uses the built-in spawn layout.
type MatchConfig struct {
	CountdownDurationSeconds int             `json:"countdown_duration_seconds"`
	SetDurationSeconds       int             `json:"set_duration_seconds"`
	PointsPerSet             int             `json:"points_per_set"`
	SetsToWin                int             `json:"sets_to_win"`
	TickRate                 int             `json:"tick_rate"`
	GameMode                 domain.GameMode `json:"game_mode"`
	MaxPlayers               int             `json:"max_players"`
	SpawnLayoutPath          string          `json:"spawn_layout_path"`
	ClientRequestsPerSecond  float64         `json:"client_requests_per_second"`
	ClientRequestBurst       int             `json:"client_request_burst"`
	ResumeTokenTTLSeconds    int             `json:"resume_token_ttl_seconds"`
}

var (
	cfg      *MatchConfig
	loadOnce sync.Once
	loadErr  error
)

// Default returns the standard match rules.
func Default() MatchConfig {
	return MatchConfig{
		CountdownDurationSeconds: 4,
		SetDurationSeconds:       180,
		PointsPerSet:             11,
		SetsToWin:                3,
		TickRate:                 10,
		GameMode:                 domain.GameModeSingles,
		MaxPlayers:               4,
		ClientRequestsPerSecond:  10,
		ClientRequestBurst:       20,
		ResumeTokenTTLSeconds:    120,
	}
}

// LoadMatchConfig loads the match configuration from the given path.
func LoadMatchConfig(path string) error {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read match config: %w", err)
			return
		}

		c, err := Parse(data)
		if err != nil {
			loadErr = err
			return
		}
		cfg = &c
	})
	return loadErr
}

// Parse decodes a JSON match configuration on top of the defaults.
func Parse(data []byte) (MatchConfig, error) {
	c := Default()
	if err := json.Unmarshal(data, &c); err != nil {
		return MatchConfig{}, fmt.Errorf("failed to unmarshal match config: %w", err)
	}
	return c.withDefaults(), nil
}

// GetMatchConfig returns a copy of the global match configuration, or the
// defaults when none was loaded.
func GetMatchConfig() MatchConfig {
	if cfg == nil {
		return Default()
	}
	return *cfg
}

// ApplyEnv overrides options from the Nakama runtime environment. Unparseable
// values are reported and the previous value kept.
func (c MatchConfig) ApplyEnv(env map[string]string) (MatchConfig, error) {
	var bad []string
	setInt := func(key string, dst *int) {
		raw, ok := env[EnvPrefix+key]
		if !ok || raw == "" {
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			bad = append(bad, key)
			return
		}
		*dst = v
	}

	setInt("countdown_duration_seconds", &c.CountdownDurationSeconds)
	setInt("set_duration_seconds", &c.SetDurationSeconds)
	setInt("points_per_set", &c.PointsPerSet)
	setInt("sets_to_win", &c.SetsToWin)
	setInt("tick_rate", &c.TickRate)
	setInt("max_players", &c.MaxPlayers)
	setInt("client_request_burst", &c.ClientRequestBurst)
	setInt("resume_token_ttl_seconds", &c.ResumeTokenTTLSeconds)

	if raw := env[EnvPrefix+"client_requests_per_second"]; raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			c.ClientRequestsPerSecond = v
		} else {
			bad = append(bad, "client_requests_per_second")
		}
	}
	if raw := env[EnvPrefix+"game_mode"]; raw != "" {
		switch mode := domain.GameMode(strings.ToLower(raw)); mode {
		case domain.GameModeSingles, domain.GameModeDoubles:
			c.GameMode = mode
		default:
			bad = append(bad, "game_mode")
		}
	}
	if raw := env[EnvPrefix+"spawn_layout_path"]; raw != "" {
		c.SpawnLayoutPath = raw
	}

	if len(bad) > 0 {
		return c, fmt.Errorf("invalid env overrides: %s", strings.Join(bad, ", "))
	}
	return c, nil
}

// CountdownDuration returns the pre-set countdown length.
func (c MatchConfig) CountdownDuration() time.Duration {
	return time.Duration(c.CountdownDurationSeconds) * time.Second
}

// SetDuration returns the length of a set.
func (c MatchConfig) SetDuration() time.Duration {
	return time.Duration(c.SetDurationSeconds) * time.Second
}

// ResumeTokenTTL returns how long a host migration token stays valid.
func (c MatchConfig) ResumeTokenTTL() time.Duration {
	return time.Duration(c.ResumeTokenTTLSeconds) * time.Second
}

// TickInterval returns the duration of one match loop tick.
func (c MatchConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// withDefaults replaces zero or invalid values with the defaults.
func (c MatchConfig) withDefaults() MatchConfig {
	d := Default()
	if c.CountdownDurationSeconds <= 0 {
		c.CountdownDurationSeconds = d.CountdownDurationSeconds
	}
	if c.SetDurationSeconds <= 0 {
		c.SetDurationSeconds = d.SetDurationSeconds
	}
	if c.PointsPerSet <= 0 {
		c.PointsPerSet = d.PointsPerSet
	}
	if c.SetsToWin <= 0 {
		c.SetsToWin = d.SetsToWin
	}
	if c.TickRate <= 0 {
		c.TickRate = d.TickRate
	}
	if c.GameMode != domain.GameModeSingles && c.GameMode != domain.GameModeDoubles {
		c.GameMode = d.GameMode
	}
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = d.MaxPlayers
	}
	if c.ClientRequestsPerSecond <= 0 {
		c.ClientRequestsPerSecond = d.ClientRequestsPerSecond
	}
	if c.ClientRequestBurst <= 0 {
		c.ClientRequestBurst = d.ClientRequestBurst
	}
	if c.ResumeTokenTTLSeconds <= 0 {
		c.ResumeTokenTTLSeconds = d.ResumeTokenTTLSeconds
	}
	return c
}
