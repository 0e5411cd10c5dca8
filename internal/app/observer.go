package app

import (
	"time"

	"tabletennis/internal/domain"
	"tabletennis/internal/ports"
	"tabletennis/internal/replica"
)

// ObserverPorts are the local presentation systems of a non-authoritative node.
type ObserverPorts struct {
	Movement  ports.MovementGate
	Mover     ports.AvatarMover
	PostGame  ports.PostGamePresenter
	Countdown ports.CountdownPresenter
	Audio     ports.AudioCue
	Teams     ports.TeamPresenter
}

// Observer mirrors the replicated match state on a node that does not own it
// and runs the local phase reaction on every change it receives.
type Observer struct {
	ports  ObserverPorts
	logger Logger

	phase  *replica.Cell[domain.Phase]
	clock  *replica.Cell[domain.MatchClock]
	colors *replica.Cell[domain.TeamColors]
	score  domain.Score

	registry   *Registry
	reaction   *PhaseReaction
	lastSecond int
}

// NewObserver returns an observer starting in PreGame.
func NewObserver(p ObserverPorts, logger Logger) *Observer {
	o := &Observer{
		ports:      p,
		logger:     orNop(logger),
		phase:      replica.NewCell[domain.Phase](nil, domain.PhasePreGame),
		clock:      replica.NewCell[domain.MatchClock](nil, domain.MatchClock{}),
		colors:     replica.NewCell[domain.TeamColors](nil, domain.TeamColors{}),
		registry:   NewRegistry(),
		lastSecond: -1,
	}
	o.reaction = &PhaseReaction{
		Movement:  p.Movement,
		PostGame:  p.PostGame,
		Countdown: p.Countdown,
		Registry:  o.registry,
	}
	o.phase.Subscribe(func(prev, next domain.Phase) {
		o.lastSecond = -1
		o.reaction.Apply(prev, next)
	})
	o.colors.Subscribe(func(_, next domain.TeamColors) {
		if next.Set {
			o.registry.NotifyTeamColors(next.TeamA, next.TeamB)
		}
	})
	return o
}

func (o *Observer) Phase() domain.Phase           { return o.phase.Get() }
func (o *Observer) Clock() domain.MatchClock      { return o.clock.Get() }
func (o *Observer) TeamColors() domain.TeamColors { return o.colors.Get() }
func (o *Observer) Score() domain.Score           { return o.score }

// RegisterPhaseListener adds l and replays the mirrored phase and colors to it.
func (o *Observer) RegisterPhaseListener(l PhaseListener) {
	if !o.registry.Add(l) {
		return
	}
	l.OnPhaseChanged(o.phase.Get())
	if colors := o.colors.Get(); colors.Set {
		l.OnTeamColorUpdated(colors.TeamA, colors.TeamB)
	}
}

// UnregisterPhaseListener removes l.
func (o *Observer) UnregisterPhaseListener(l PhaseListener) {
	o.registry.Remove(l)
}

// HandleEvent applies one event received from the authority.
func (o *Observer) HandleEvent(ev Event) {
	switch payload := ev.Payload.(type) {
	case PhaseChangedPayload:
		o.phase.Apply(payload.Phase)
	case ClockUpdatedPayload:
		o.clock.Apply(payload.Clock)
	case TeamColorsPayload:
		o.colors.Apply(payload.Colors)
	case RespawnPayload:
		o.ApplyRespawn(payload)
	case CountdownStartedPayload:
		if o.ports.Countdown != nil {
			o.ports.Countdown.Show(payload.EndTime, nil)
		}
	case CountdownBeepPayload:
		if o.ports.Audio != nil {
			o.ports.Audio.PlayCountdownBeep(payload.IsFinal)
		}
	case PostGameShownPayload:
		if o.ports.PostGame != nil {
			o.ports.PostGame.ShowPostGameUI(payload.Stats, payload.IsMatchComplete)
		}
	case SideAssignedPayload:
		if o.ports.Teams != nil {
			o.ports.Teams.PaintSide(payload.ClientID, payload.Team, payload.Color)
		}
	case TeamLockedPayload:
		if o.ports.Teams != nil {
			o.ports.Teams.LockTeam(payload.ClientID, payload.Team)
		}
	case ScoreUpdatedPayload:
		o.score = payload.Score
	default:
		switch ev.Kind {
		case EventPostGameHidden:
			if o.ports.PostGame != nil {
				o.ports.PostGame.HidePostGameUI()
			}
		case EventBallsDespawned, EventAuthorityHandoff:
		default:
			o.logger.Debug("Observer: unhandled event %s", ev.Kind)
		}
	}
}

// ApplyRespawn moves the local avatar. Movement is frozen first when the
// phase does not allow it, so the player cannot walk off the placement.
func (o *Observer) ApplyRespawn(p RespawnPayload) {
	if o.ports.Movement != nil && !MovementAllowed(p.Phase) {
		o.ports.Movement.SetEnabled(false)
	}
	if o.ports.Mover != nil {
		o.ports.Mover.Teleport(p.Transform)
	}
}

// Tick drives the local timer display from the mirrored clock.
func (o *Observer) Tick(now time.Time) {
	clock := o.clock.Get()
	var target time.Time
	switch o.phase.Get() {
	case domain.PhaseCountdown:
		target = clock.GameStartTime
	case domain.PhaseInGame:
		target = clock.GameEndTime
	default:
		return
	}
	// The clock may arrive after the phase.
	if target.IsZero() {
		return
	}
	left := max(target.Sub(now), 0)
	second := int(left / time.Second)
	if second == o.lastSecond {
		return
	}
	o.lastSecond = second
	o.registry.NotifyTimeLeft(left)
}
