package app

import "tabletennis/internal/domain"

// Statistics tallies sets won over a match.
type Statistics struct {
	stats     domain.GameStatistics
	setsToWin int
}

// NewStatistics returns an empty tally for a best-of-(2*setsToWin-1) match.
func NewStatistics(setsToWin int) *Statistics {
	return &Statistics{setsToWin: setsToWin}
}

func (s *Statistics) OnSetCompleted(winner domain.Team) {
	switch winner {
	case domain.TeamA:
		s.stats.SetsWonByA++
	case domain.TeamB:
		s.stats.SetsWonByB++
	default:
		return
	}
	s.stats.SetsPlayed++
	s.stats.IsMatchComplete = domain.CheckMatchComplete(s.stats, s.setsToWin)
}

// RecordRally counts a finished rally of the current set.
func (s *Statistics) RecordRally() {
	s.stats.RalliesThisSet++
}

func (s *Statistics) GetCurrentStatistics() domain.GameStatistics { return s.stats }

func (s *Statistics) ResetMatchStatistics() {
	s.stats = domain.GameStatistics{}
}

// ResetSetStatistics clears what only concerns the set that just ended.
func (s *Statistics) ResetSetStatistics() {
	s.stats.RalliesThisSet = 0
}

func (s *Statistics) RestoreStatistics(stats domain.GameStatistics) {
	s.stats = stats
}
