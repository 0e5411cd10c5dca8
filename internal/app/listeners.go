package app

import (
	"reflect"
	"time"

	"tabletennis/internal/domain"
)

// PhaseListener observes match phase, timer and team color changes.
// Listeners must not assume any ordering relative to each other.
type PhaseListener interface {
	OnPhaseChanged(phase domain.Phase)
	OnPhaseTimeUpdate(timeLeft time.Duration)
	OnTeamColorUpdated(teamA, teamB domain.TeamColor)
}

// ListenerFuncs adapts plain funcs to PhaseListener. Nil funcs are skipped.
// Register it by pointer so it can be unregistered.
type ListenerFuncs struct {
	Phase  func(domain.Phase)
	Time   func(time.Duration)
	Colors func(teamA, teamB domain.TeamColor)
}

func (f *ListenerFuncs) OnPhaseChanged(phase domain.Phase) {
	if f.Phase != nil {
		f.Phase(phase)
	}
}

func (f *ListenerFuncs) OnPhaseTimeUpdate(timeLeft time.Duration) {
	if f.Time != nil {
		f.Time(timeLeft)
	}
}

func (f *ListenerFuncs) OnTeamColorUpdated(teamA, teamB domain.TeamColor) {
	if f.Colors != nil {
		f.Colors(teamA, teamB)
	}
}

// Registry fans phase notifications out to listeners. Listeners are matched
// by identity, so register pointers: a listener whose type is not comparable
// is always added and can never be removed.
type Registry struct {
	listeners []PhaseListener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers l. Registering the same listener twice is a no-op.
func (r *Registry) Add(l PhaseListener) bool {
	if l == nil || r.index(l) >= 0 {
		return false
	}
	r.listeners = append(r.listeners, l)
	return true
}

// Remove unregisters l.
func (r *Registry) Remove(l PhaseListener) {
	i := r.index(l)
	if i < 0 {
		return
	}
	// Copy on write so in-flight snapshots keep their view.
	next := make([]PhaseListener, 0, len(r.listeners)-1)
	next = append(next, r.listeners[:i]...)
	next = append(next, r.listeners[i+1:]...)
	r.listeners = next
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int { return len(r.listeners) }

func (r *Registry) Notify(phase domain.Phase) {
	for _, l := range r.snapshot() {
		l.OnPhaseChanged(phase)
	}
}

func (r *Registry) NotifyTimeLeft(timeLeft time.Duration) {
	for _, l := range r.snapshot() {
		l.OnPhaseTimeUpdate(timeLeft)
	}
}

func (r *Registry) NotifyTeamColors(teamA, teamB domain.TeamColor) {
	for _, l := range r.snapshot() {
		l.OnTeamColorUpdated(teamA, teamB)
	}
}

func (r *Registry) snapshot() []PhaseListener {
	return append([]PhaseListener(nil), r.listeners...)
}

func (r *Registry) index(l PhaseListener) int {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return -1
	}
	for i, existing := range r.listeners {
		if existing == l {
			return i
		}
	}
	return -1
}
