package app

import (
	"tabletennis/internal/domain"
	"tabletennis/internal/ports"
)

// RespawnCoordinator computes spawn placements and tells each client where to go.
type RespawnCoordinator struct {
	spawns   ports.SpawnConfig
	sessions ports.SessionStore
	bus      MessageBus
	mode     domain.GameMode
	teamOf   func(clientID string) domain.Team
	logger   Logger
}

// NewRespawnCoordinator builds a coordinator. spawns may be nil, in which
// case every placement falls back to the built-in team centers.
func NewRespawnCoordinator(spawns ports.SpawnConfig, sessions ports.SessionStore, bus MessageBus, mode domain.GameMode, teamOf func(string) domain.Team, logger Logger) *RespawnCoordinator {
	if teamOf == nil {
		teamOf = func(string) domain.Team { return domain.NoTeam }
	}
	return &RespawnCoordinator{
		spawns:   spawns,
		sessions: sessions,
		bus:      bus,
		mode:     mode,
		teamOf:   teamOf,
		logger:   orNop(logger),
	}
}

// GetRespawnPoint returns where clientID should appear for team in phase.
// ok is false when the client has no session record; it must be skipped.
func (rc *RespawnCoordinator) GetRespawnPoint(clientID string, team domain.Team, phase domain.Phase) (domain.Transform, bool) {
	if rc.sessions == nil {
		rc.logger.Warn("RespawnCoordinator: no session store, cannot place %s", clientID)
		return domain.Transform{}, false
	}
	record, ok := rc.sessions.GetPlayerData(clientID)
	if !ok {
		rc.logger.Warn("RespawnCoordinator: no session record for %s, skipping respawn (phase=%s)", clientID, phase)
		return domain.Transform{}, false
	}

	if rc.spawns == nil {
		rc.logger.Warn("RespawnCoordinator: spawn configuration missing, using team center for %s", clientID)
		return rc.fallback(team), true
	}

	// Unsided players wait in the shared stand until they pick a half.
	if record.IsSpectator || team == domain.NoTeam {
		if point, ok := rc.spawns.GetSpectatorSpawnPoint(team); ok {
			return point, true
		}
	} else if point, ok := rc.spawns.GetPlayerSpawnPoint(rc.mode, team, record.SeatIndex); ok {
		return point, true
	}

	rc.logger.Debug("RespawnCoordinator: no spawn point for %s (team=%q, seat=%d), using team center", clientID, team, record.SeatIndex)
	return rc.fallback(team), true
}

// RespawnAll sends each client its own placement. Messages are targeted, never broadcast.
func (rc *RespawnCoordinator) RespawnAll(clientIDs []string, phase domain.Phase) {
	for _, id := range clientIDs {
		rc.Respawn(id, phase)
	}
}

// Respawn places a single client.
func (rc *RespawnCoordinator) Respawn(clientID string, phase domain.Phase) bool {
	team := rc.teamOf(clientID)
	if team == domain.NoTeam && rc.sessions != nil {
		if record, ok := rc.sessions.GetPlayerData(clientID); ok {
			team = record.Team
		}
	}

	point, ok := rc.GetRespawnPoint(clientID, team, phase)
	if !ok {
		return false
	}
	if rc.bus == nil {
		return true
	}
	if err := rc.bus.SendTo(clientID, Event{
		Kind:    EventRespawn,
		Payload: RespawnPayload{Transform: point, Phase: phase},
	}); err != nil {
		rc.logger.Warn("RespawnCoordinator: failed to send respawn to %s: %v", clientID, err)
		return false
	}
	return true
}

// ResetSpawnPoints releases all claimed spawn points.
func (rc *RespawnCoordinator) ResetSpawnPoints() {
	if rc.spawns == nil {
		rc.logger.Warn("RespawnCoordinator: spawn configuration missing, nothing to reset")
		return
	}
	rc.spawns.ResetAllSpawnPoints()
}

// fallback stands at the team's center, looking across the net at the opponent.
func (rc *RespawnCoordinator) fallback(team domain.Team) domain.Transform {
	center := rc.teamCenter(team)
	facing := rc.teamCenter(team.Opponent()).Sub(center)
	return domain.Transform{Position: center, Rotation: domain.LookRotation(facing)}
}

func (rc *RespawnCoordinator) teamCenter(team domain.Team) domain.Vec3 {
	if rc.spawns == nil {
		return domain.DefaultTeamCenter(team)
	}
	return rc.spawns.GetTeamCenter(team)
}
