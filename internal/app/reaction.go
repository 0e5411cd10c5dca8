package app

import (
	"tabletennis/internal/domain"
	"tabletennis/internal/ports"
)

// PhaseReaction is the local presentation response to a phase change.
// Every node runs it, so it only touches local presentation state and
// produces the same result when applied twice. Nil collaborators are skipped.
type PhaseReaction struct {
	Movement  ports.MovementGate
	PostGame  ports.PostGamePresenter
	Countdown ports.CountdownPresenter
	Registry  *Registry
}

// MovementAllowed reports whether players may walk around in phase.
func MovementAllowed(phase domain.Phase) bool {
	return phase == domain.PhasePreGame || phase == domain.PhaseInGame
}

// Apply reacts to the transition prev -> next.
func (r *PhaseReaction) Apply(prev, next domain.Phase) {
	if r.Movement != nil {
		r.Movement.SetEnabled(MovementAllowed(next))
	}
	// The post-game screen itself is opened with statistics by the set completion path.
	if r.PostGame != nil && next != domain.PhasePostGame {
		r.PostGame.HidePostGameUI()
	}
	if r.Countdown != nil && next != domain.PhaseCountdown {
		r.Countdown.Reset()
	}
	if r.Registry != nil {
		r.Registry.Notify(next)
	}
}
