package domain

import "math"

// Vec3 is a world-space position or direction in meters.
// The court's long axis is Z: Team A plays on the negative half.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Length returns the euclidean norm of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Quat is a unit quaternion rotation.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuat faces +Z (towards Team B's side).
var IdentityQuat = Quat{W: 1}

// LookRotation returns the yaw-only rotation facing dir on the horizontal plane.
// A zero horizontal direction yields the identity rotation.
func LookRotation(dir Vec3) Quat {
	if dir.X == 0 && dir.Z == 0 {
		return IdentityQuat
	}
	yaw := math.Atan2(dir.X, dir.Z)
	return Quat{Y: math.Sin(yaw / 2), W: math.Cos(yaw / 2)}
}

// Forward returns the horizontal unit vector q is facing.
func (q Quat) Forward() Vec3 {
	yaw := 2 * math.Atan2(q.Y, q.W)
	return Vec3{X: math.Sin(yaw), Z: math.Cos(yaw)}
}

// Transform is a spawn placement: where to stand and which way to look.
type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Quat `json:"rotation"`
}

// SideOf classifies a position by the court half it stands on.
func SideOf(p Vec3) Team {
	if p.Z < 0 {
		return TeamA
	}
	return TeamB
}

// CourtHalfLength is the distance from the net to the default team centers.
const CourtHalfLength = 2.5

// DefaultTeamCenter is the built-in center of a team's half, used when no
// spawn layout is configured.
func DefaultTeamCenter(team Team) Vec3 {
	switch team {
	case TeamA:
		return Vec3{Z: -CourtHalfLength}
	case TeamB:
		return Vec3{Z: CourtHalfLength}
	}
	return Vec3{}
}
