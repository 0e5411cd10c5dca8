package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletennis/internal/domain"
	"tabletennis/internal/replica"
)

func TestScoreboardAddPoint(t *testing.T) {
	bus := NewMemoryBus()
	s := NewScoreboard(replica.NewRole(true), bus, nil)
	var seen []domain.Score
	cancel := s.Subscribe(func(score domain.Score) { seen = append(seen, score) })

	require.NoError(t, s.AddPoint(domain.TeamA))
	require.NoError(t, s.AddPoint(domain.TeamB))
	require.ErrorIs(t, s.AddPoint(domain.NoTeam), ErrUnknownTeam)
	cancel()
	s.Reset()

	assert.Equal(t, []domain.Score{{TeamA: 1}, {TeamA: 1, TeamB: 1}}, seen)
	assert.Equal(t, domain.Score{}, s.Current())
	assert.Len(t, bus.OfKind(EventScoreUpdated), 3)
}

func TestScoreboardRejectsObserverWrites(t *testing.T) {
	s := NewScoreboard(replica.NewRole(false), nil, nil)

	assert.ErrorIs(t, s.AddPoint(domain.TeamA), ErrNotAuthority)
	s.RestoreScore(domain.Score{TeamA: 5})
	assert.Equal(t, domain.Score{}, s.Current())
}

func TestStatisticsTally(t *testing.T) {
	s := NewStatistics(2)
	s.RecordRally()
	s.OnSetCompleted(domain.TeamA)
	s.OnSetCompleted(domain.NoTeam)
	s.ResetSetStatistics()
	s.OnSetCompleted(domain.TeamA)

	assert.Equal(t, domain.GameStatistics{SetsWonByA: 2, SetsPlayed: 2, IsMatchComplete: true}, s.GetCurrentStatistics())

	s.ResetMatchStatistics()
	assert.Equal(t, domain.GameStatistics{}, s.GetCurrentStatistics())

	s.RestoreStatistics(domain.GameStatistics{SetsWonByB: 1, SetsPlayed: 1})
	assert.Equal(t, 1, s.GetCurrentStatistics().SetsWonByB)
}

func TestMemorySessionStoreTracksChanges(t *testing.T) {
	s := NewMemorySessionStore()
	s.Load(domain.PlayerRecord{ClientID: "b"}, domain.PlayerRecord{ClientID: "a"})
	assert.Empty(t, s.TakeDirty())

	s.SetPlayerData("b", domain.PlayerRecord{Team: domain.TeamB})
	s.SetPlayerData("a", domain.PlayerRecord{ClientID: "a"})
	s.SetPlayerData("c", domain.PlayerRecord{DisplayName: "carol"})

	dirty := s.TakeDirty()
	require.Len(t, dirty, 2, "unchanged records are not dirty")
	assert.Equal(t, "b", dirty[0].ClientID)
	assert.Equal(t, "c", dirty[1].ClientID)
	assert.Empty(t, s.TakeDirty())

	s.Remove("a")
	_, ok := s.GetPlayerData("a")
	assert.False(t, ok)
	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ClientID)
}
