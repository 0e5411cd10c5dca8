package app

import (
	"time"

	"tabletennis/internal/domain"
	"tabletennis/internal/ports"
)

// BroadcastPresenter implements the presentation collaborators of a dedicated
// authority by turning each call into an event for the observers. The
// countdown expiry callback is not kept; the controller's tick ends the countdown.
type BroadcastPresenter struct {
	bus    MessageBus
	logger Logger
}

// NewBroadcastPresenter publishes presentation events on bus.
func NewBroadcastPresenter(bus MessageBus, logger Logger) *BroadcastPresenter {
	return &BroadcastPresenter{bus: bus, logger: orNop(logger)}
}

var (
	_ ports.BallPort           = (*BroadcastPresenter)(nil)
	_ ports.PostGamePresenter  = (*BroadcastPresenter)(nil)
	_ ports.CountdownPresenter = (*BroadcastPresenter)(nil)
	_ ports.AudioCue           = (*BroadcastPresenter)(nil)
	_ ports.TeamPresenter      = (*BroadcastPresenter)(nil)
)

func (p *BroadcastPresenter) DespawnAll() {
	p.broadcast(Event{Kind: EventBallsDespawned})
}

func (p *BroadcastPresenter) ShowPostGameUI(stats domain.GameStatistics, isMatchComplete bool) {
	p.broadcast(Event{Kind: EventPostGameShown, Payload: PostGameShownPayload{Stats: stats, IsMatchComplete: isMatchComplete}})
}

func (p *BroadcastPresenter) HidePostGameUI() {
	p.broadcast(Event{Kind: EventPostGameHidden})
}

func (p *BroadcastPresenter) Show(endTime time.Time, _ func()) {
	p.broadcast(Event{Kind: EventCountdownStarted, Payload: CountdownStartedPayload{EndTime: endTime}})
}

// Reset is a no-op: observers reset their countdown display on phase change.
func (p *BroadcastPresenter) Reset() {}

func (p *BroadcastPresenter) PlayCountdownBeep(isFinal bool) {
	p.broadcast(Event{Kind: EventCountdownBeep, Payload: CountdownBeepPayload{IsFinal: isFinal}})
}

func (p *BroadcastPresenter) PaintSide(clientID string, team domain.Team, color domain.TeamColor) {
	p.broadcast(Event{Kind: EventSideAssigned, Payload: SideAssignedPayload{ClientID: clientID, Team: team, Color: color}})
}

func (p *BroadcastPresenter) LockTeam(clientID string, team domain.Team) {
	p.broadcast(Event{Kind: EventTeamLocked, Payload: TeamLockedPayload{ClientID: clientID, Team: team}})
}

func (p *BroadcastPresenter) broadcast(ev Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Broadcast(ev); err != nil {
		p.logger.Warn("BroadcastPresenter: failed to broadcast %s: %v", ev.Kind, err)
	}
}
