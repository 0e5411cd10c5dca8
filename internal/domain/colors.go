package domain

import "math/rand"

// TeamColor is a visual profile applied to a team's paddles and avatars.
type TeamColor struct {
	Name    string `json:"name"`
	Primary string `json:"primary"` // hex RGB
	Accent  string `json:"accent"`
}

// TeamColors is the color assignment of a match. Set latches once drawn.
type TeamColors struct {
	TeamA TeamColor `json:"team_a"`
	TeamB TeamColor `json:"team_b"`
	Set   bool      `json:"set"`
}

// Of returns the color of the given team; NoTeam gets the zero color.
func (tc TeamColors) Of(team Team) TeamColor {
	switch team {
	case TeamA:
		return tc.TeamA
	case TeamB:
		return tc.TeamB
	}
	return TeamColor{}
}

// ColorPair is one palette entry: two profiles that read well against each other.
type ColorPair struct {
	First  TeamColor
	Second TeamColor
}

// DefaultPalette lists the paired, visually distinct profiles a match draws from.
var DefaultPalette = []ColorPair{
	{TeamColor{"crimson", "#C8102E", "#FFD1D6"}, TeamColor{"azure", "#0072CE", "#CDE6FF"}},
	{TeamColor{"amber", "#FFB000", "#FFF0C2"}, TeamColor{"violet", "#6A2C91", "#E4D1F2"}},
	{TeamColor{"emerald", "#00875A", "#C9F2E2"}, TeamColor{"coral", "#FF6F61", "#FFE0DC"}},
	{TeamColor{"teal", "#008C95", "#C4F0F2"}, TeamColor{"magenta", "#C5007A", "#FFD0EC"}},
}

// DrawTeamColors picks a palette pair and randomly decides which side gets which profile.
func DrawTeamColors(rng *rand.Rand, palette []ColorPair) TeamColors {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	pair := palette[rng.Intn(len(palette))]
	if rng.Intn(2) == 1 {
		pair.First, pair.Second = pair.Second, pair.First
	}
	return TeamColors{TeamA: pair.First, TeamB: pair.Second, Set: true}
}
