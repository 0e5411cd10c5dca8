package domain

// MinWinningMargin is the lead a side needs over the other to take a set.
const MinWinningMargin = 2

// CheckSetComplete decides whether the set is over.
// A side wins once it reached pointsPerSet and leads by at least two points.
// There is no cap: at deuce the rally goes on until the margin is two.
func CheckSetComplete(scoreA, scoreB, pointsPerSet int) (bool, Team) {
	if scoreA >= pointsPerSet && scoreA-scoreB >= MinWinningMargin {
		return true, TeamA
	}
	if scoreB >= pointsPerSet && scoreB-scoreA >= MinWinningMargin {
		return true, TeamB
	}
	return false, NoTeam
}

// CheckMatchComplete reports whether either side has won setsToWin sets.
func CheckMatchComplete(stats GameStatistics, setsToWin int) bool {
	return stats.SetsWonByA >= setsToWin || stats.SetsWonByB >= setsToWin
}
