// Package spawn provides the venue's spawn placements.
package spawn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"tabletennis/internal/domain"
	"tabletennis/internal/ports"
)

var ErrEmptyLayout = errors.New("spawn layout has no player points")

// Layout is the immutable spawn table of a venue, shared by every match.
// Spectator stands are keyed by the side they watch from; NoTeam is the shared stand.
type Layout struct {
	TeamCenters map[domain.Team]domain.Vec3                            `json:"team_centers"`
	Players     map[domain.GameMode]map[domain.Team][]domain.Transform `json:"players"`
	Spectators  map[domain.Team][]domain.Transform                     `json:"spectators"`
}

// LoadLayout reads a JSON spawn layout. Points without a rotation face the
// opposing team's center.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spawn layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes and normalizes a JSON spawn layout.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spawn layout: %w", err)
	}
	if len(l.Players) == 0 {
		return nil, ErrEmptyLayout
	}
	l.normalize()
	return &l, nil
}

// DefaultLayout is a regulation table with two seats per side and a stand on
// each long edge.
func DefaultLayout() *Layout {
	l := &Layout{
		Players: map[domain.GameMode]map[domain.Team][]domain.Transform{
			domain.GameModeSingles: {
				domain.TeamA: {{Position: domain.Vec3{Z: -2.2}}},
				domain.TeamB: {{Position: domain.Vec3{Z: 2.2}}},
			},
			domain.GameModeDoubles: {
				domain.TeamA: {{Position: domain.Vec3{X: -0.6, Z: -2.2}}, {Position: domain.Vec3{X: 0.6, Z: -2.6}}},
				domain.TeamB: {{Position: domain.Vec3{X: 0.6, Z: 2.2}}, {Position: domain.Vec3{X: -0.6, Z: 2.6}}},
			},
		},
		Spectators: map[domain.Team][]domain.Transform{
			domain.TeamA: {{Position: domain.Vec3{X: -3, Z: -1.5}}, {Position: domain.Vec3{X: 3, Z: -1.5}}},
			domain.TeamB: {{Position: domain.Vec3{X: -3, Z: 1.5}}, {Position: domain.Vec3{X: 3, Z: 1.5}}},
			domain.NoTeam: {
				{Position: domain.Vec3{X: -3.5}},
				{Position: domain.Vec3{X: 3.5}},
			},
		},
	}
	l.normalize()
	return l
}

// TeamCenter returns the configured center of a team's half.
func (l *Layout) TeamCenter(team domain.Team) domain.Vec3 {
	if c, ok := l.TeamCenters[team]; ok {
		return c
	}
	return domain.DefaultTeamCenter(team)
}

func (l *Layout) normalize() {
	for _, teams := range l.Players {
		for team, points := range teams {
			l.orient(points, l.TeamCenter(team.Opponent()))
		}
	}
	// Stands look at the net.
	for _, points := range l.Spectators {
		l.orient(points, domain.Vec3{})
	}
}

func (l *Layout) orient(points []domain.Transform, target domain.Vec3) {
	for i := range points {
		if points[i].Rotation != (domain.Quat{}) {
			continue
		}
		points[i].Rotation = domain.LookRotation(target.Sub(points[i].Position))
	}
}

// Spawner hands out placements from a Layout for one match. Spectator points
// are used round-robin; ResetAllSpawnPoints restarts the rotation.
type Spawner struct {
	layout *Layout
	cursor map[domain.Team]int
}

var _ ports.SpawnConfig = (*Spawner)(nil)

// NewSpawner binds a per-match spawner to a shared layout.
func NewSpawner(layout *Layout) *Spawner {
	if layout == nil {
		layout = DefaultLayout()
	}
	return &Spawner{layout: layout, cursor: make(map[domain.Team]int)}
}

func (s *Spawner) GetPlayerSpawnPoint(mode domain.GameMode, team domain.Team, seatIndex int) (domain.Transform, bool) {
	points := s.layout.Players[mode][team]
	if seatIndex < 0 || seatIndex >= len(points) {
		return domain.Transform{}, false
	}
	return points[seatIndex], true
}

// GetSpectatorSpawnPoint prefers the stand on team's side, then the shared stand.
func (s *Spawner) GetSpectatorSpawnPoint(team domain.Team) (domain.Transform, bool) {
	for _, key := range []domain.Team{team, domain.NoTeam} {
		points := s.layout.Spectators[key]
		if len(points) == 0 {
			continue
		}
		i := s.cursor[key] % len(points)
		s.cursor[key]++
		return points[i], true
	}
	return domain.Transform{}, false
}

func (s *Spawner) GetTeamCenter(team domain.Team) domain.Vec3 {
	return s.layout.TeamCenter(team)
}

func (s *Spawner) ResetAllSpawnPoints() {
	clear(s.cursor)
}
