package spc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultConfirmDelay = 2 * time.Second

type Action uint8

const (
	ActionDisarm Action = iota
	ActionArm
	ActionInhibit
	ActionUninhibit
)

func (a Action) String() string {
	switch a {
	case ActionArm:
		return "arm"
	case ActionInhibit:
		return "inhibit"
	case ActionUninhibit:
		return "uninhibit"
	default:
		return "disarm"
	}
}

// CommandResult tells how a command went. Err is nil if the panel
// state confirmed it.
type CommandResult struct {
	Action Action
	Zone   int
	Err    error
}

func (r CommandResult) OK() bool {
	return r.Err == nil
}

type requester interface {
	Request(ctx context.Context, req Request) (*Response, error)
}

type confirmer interface {
	PollNow(ctx context.Context) (Snapshot, error)
}

// Dispatcher sends commands to the panel, one at a time, and checks their
// effect with out of schedule polls.
// Commands are never retried: a security system should not be surprised by
// state changes nobody asked for anymore.
type Dispatcher struct {
	session  requester
	poller   confirmer
	listener Listener
	delay    time.Duration

	lock sync.Mutex
}

func NewDispatcher(session requester, poller confirmer, listener Listener) *Dispatcher {
	if listener == nil {
		listener = NopListener{}
	}
	return &Dispatcher{
		session:  session,
		poller:   poller,
		listener: listener,
		delay:    defaultConfirmDelay,
	}
}

// SetAreaState arms or disarms all areas.
func (d *Dispatcher) SetAreaState(ctx context.Context, desired AreaStatus) error {
	action := ActionDisarm
	if desired == AreaArmed {
		action = ActionArm
	}
	return d.run(ctx, action, 0, makeArmRequest(desired), func(s Snapshot) bool {
		return s.Area.Status == desired
	})
}

// SetZoneInhibit inhibits or deinhibits a zone.
func (d *Dispatcher) SetZoneInhibit(ctx context.Context, zone int, inhibit bool) error {
	action := ActionUninhibit
	if inhibit {
		action = ActionInhibit
	}
	return d.run(ctx, action, zone, makeInhibitRequest(zone, inhibit), func(s Snapshot) bool {
		z, ok := s.Zone(zone)
		return ok && z.Inhibited == inhibit
	})
}

func (d *Dispatcher) run(
	ctx context.Context,
	action Action,
	zone int,
	req Request,
	confirmed func(Snapshot) bool,
) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	log.Info("sending command", "action", action, "zone", zone)
	err := d.send(ctx, req)
	if err == nil {
		err = d.confirm(ctx, action, confirmed)
	}

	result := CommandResult{Action: action, Zone: zone, Err: err}
	if err != nil {
		log.Error("command failed", "action", action, "zone", zone, "err", err)
	} else {
		log.Info("command confirmed", "action", action, "zone", zone)
	}
	d.listener.OnCommandResult(result)
	return err
}

func (d *Dispatcher) send(ctx context.Context, req Request) error {
	resp, err := d.session.Request(ctx, req)
	if err != nil {
		return fmt.Errorf("could not send command: %w", err)
	}
	// only the summary page tells about refused commands, the zones page
	// draws statuses in all sorts of fonts.
	if req.Query.Get("page") != pageSummary {
		return nil
	}
	if msg := parseImportantMessage(resp.Body); msg != "" {
		return fmt.Errorf("%w: %s", ErrPanel, msg)
	}
	return nil
}

// confirm polls the panel until it shows the command took effect, trying
// twice at most.
func (d *Dispatcher) confirm(ctx context.Context, action Action, confirmed func(Snapshot) bool) error {
	var last error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return classify(ctx.Err())
			case <-time.After(d.delay):
			}
		}
		snap, err := d.poller.PollNow(ctx)
		if err != nil {
			last = err
			continue
		}
		if confirmed(snap) {
			return nil
		}
		last = nil
		log.Warn("panel does not reflect command yet", "action", action, "area", snap.Area.Status)
	}
	if last != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotConfirmed, action, last)
	}
	return fmt.Errorf("%w: %s", ErrNotConfirmed, action)
}
