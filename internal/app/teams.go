package app

import (
	"maps"

	"tabletennis/internal/domain"
	"tabletennis/internal/ports"
)

// PositionFunc returns the world position of a client's avatar, or ok=false
// when the client has no spawned avatar.
type PositionFunc func(clientID string) (domain.Vec3, bool)

// TeamAssigner decides which side of the table each player is on.
// Before a match, sides follow where players stand; from match start the
// mapping is locked until the match is exited.
type TeamAssigner struct {
	sides      map[string]domain.Team
	rosterSize int
	locked     bool

	colors    func() domain.TeamColors
	presenter ports.TeamPresenter
	sessions  ports.SessionStore
	logger    Logger
}

// NewTeamAssigner builds an assigner. colors returns the match's team colors.
func NewTeamAssigner(colors func() domain.TeamColors, presenter ports.TeamPresenter, sessions ports.SessionStore, logger Logger) *TeamAssigner {
	if colors == nil {
		colors = func() domain.TeamColors { return domain.TeamColors{} }
	}
	return &TeamAssigner{
		sides:     make(map[string]domain.Team),
		colors:    colors,
		presenter: presenter,
		sessions:  sessions,
		logger:    orNop(logger),
	}
}

// RecomputeSides classifies every connected player with an avatar by the
// court half they stand on. A changed roster size discards the whole map.
// It does nothing while sides are locked.
func (ta *TeamAssigner) RecomputeSides(clientIDs []string, positionOf PositionFunc) {
	if ta.locked {
		return
	}
	if len(clientIDs) != ta.rosterSize {
		ta.logger.Debug("TeamAssigner: roster size %d -> %d, rebuilding sides", ta.rosterSize, len(clientIDs))
		ta.sides = make(map[string]domain.Team, len(clientIDs))
		ta.rosterSize = len(clientIDs)
	}
	if positionOf == nil {
		return
	}

	colors := ta.colors()
	for _, id := range clientIDs {
		if ta.isSpectator(id) {
			delete(ta.sides, id)
			continue
		}
		pos, ok := positionOf(id)
		if !ok {
			delete(ta.sides, id)
			continue
		}
		side := domain.SideOf(pos)
		prev, had := ta.sides[id]
		ta.sides[id] = side
		if had && prev == side {
			continue
		}
		if ta.presenter != nil && colors.Set {
			ta.presenter.PaintSide(id, side, colors.Of(side))
		}
	}
}

// LockSides fixes the current mapping for the set about to start. Each
// player's team is pushed to its avatar and stored in its session record,
// along with its seat index inside the team (roster order). Spectators are
// dropped from the mapping. Players without a side join the smaller team,
// team A on a tie.
func (ta *TeamAssigner) LockSides(clientIDs []string) {
	var unsided []string
	for _, id := range clientIDs {
		if ta.isSpectator(id) {
			delete(ta.sides, id)
			ta.clearSeat(id)
			continue
		}
		if _, ok := ta.sides[id]; !ok {
			unsided = append(unsided, id)
		}
	}
	for _, id := range unsided {
		team := domain.TeamA
		if ta.count(domain.TeamB) < ta.count(domain.TeamA) {
			team = domain.TeamB
		}
		ta.sides[id] = team
		ta.logger.Debug("TeamAssigner: %s has no side, joining team %s", id, team)
	}

	seats := map[domain.Team]int{}
	for _, id := range clientIDs {
		team, ok := ta.sides[id]
		if !ok {
			continue
		}
		seat := seats[team]
		seats[team]++

		if ta.presenter != nil {
			ta.presenter.LockTeam(id, team)
		}
		if ta.sessions == nil {
			continue
		}
		record, ok := ta.sessions.GetPlayerData(id)
		if !ok {
			ta.logger.Debug("TeamAssigner: no session record for %s, team not persisted", id)
			continue
		}
		record.Team = team
		record.SeatIndex = seat
		ta.sessions.SetPlayerData(id, record)
	}
	ta.locked = true
}

// Unlock lets sides follow player positions again.
func (ta *TeamAssigner) Unlock() {
	ta.locked = false
}

// Locked reports whether the mapping is frozen.
func (ta *TeamAssigner) Locked() bool { return ta.locked }

// TeamOf returns the recorded side of a client.
func (ta *TeamAssigner) TeamOf(clientID string) domain.Team {
	return ta.sides[clientID]
}

// Sides returns a copy of the mapping.
func (ta *TeamAssigner) Sides() map[string]domain.Team {
	return maps.Clone(ta.sides)
}

// Restore replaces the mapping, used when a new authority resumes a match.
func (ta *TeamAssigner) Restore(sides map[string]domain.Team, locked bool) {
	ta.sides = maps.Clone(sides)
	if ta.sides == nil {
		ta.sides = make(map[string]domain.Team)
	}
	ta.rosterSize = len(ta.sides)
	ta.locked = locked
}

func (ta *TeamAssigner) isSpectator(clientID string) bool {
	if ta.sessions == nil {
		return false
	}
	record, ok := ta.sessions.GetPlayerData(clientID)
	return ok && record.IsSpectator
}

func (ta *TeamAssigner) count(team domain.Team) int {
	n := 0
	for _, t := range ta.sides {
		if t == team {
			n++
		}
	}
	return n
}

// clearSeat wipes a seat left over from a set the client played before
// turning spectator.
func (ta *TeamAssigner) clearSeat(clientID string) {
	record, ok := ta.sessions.GetPlayerData(clientID)
	if !ok || (record.Team == domain.NoTeam && record.SeatIndex == 0) {
		return
	}
	record.Team = domain.NoTeam
	record.SeatIndex = 0
	ta.sessions.SetPlayerData(clientID, record)
}
