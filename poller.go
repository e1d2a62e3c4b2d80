package spc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type PollerState int32

const (
	StateIdle PollerState = iota
	StatePolling
	StateBackoff
)

func (s PollerState) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateBackoff:
		return "backoff"
	default:
		return "idle"
	}
}

type availability int8

const (
	availabilityUnknown availability = iota
	availabilityUp
	availabilityDown
)

// Listener receives what the panel core has to tell.
// Calls may come from different goroutines.
type Listener interface {
	// OnSnapshot is called when a poll returns something different from the
	// last known snapshot.
	OnSnapshot(snapshot Snapshot, change Change)
	OnAvailabilityChanged(available bool)
	OnCommandResult(result CommandResult)
}

// NopListener ignores everything.
type NopListener struct{}

func (NopListener) OnSnapshot(Snapshot, Change)   {}
func (NopListener) OnAvailabilityChanged(bool)    {}
func (NopListener) OnCommandResult(CommandResult) {}

// FetchFunc gets and parses the panel state.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// Poller fetches the panel state every interval, keeps the last good
// snapshot, and tells the listener about changes.
// Polls never overlap: a tick that happens while a poll runs is dropped.
type Poller struct {
	fetch     FetchFunc
	listener  Listener
	interval  time.Duration
	timeout   time.Duration
	threshold int

	slot  chan struct{}
	state atomic.Int32
	wg    sync.WaitGroup

	mu        sync.RWMutex
	last      *Snapshot
	failures  int
	lastErr   error
	available availability
}

func NewPoller(cfg Config, fetch FetchFunc, listener Listener) *Poller {
	cfg = cfg.withDefaults()
	if listener == nil {
		listener = NopListener{}
	}
	// a poll may have to login, fetch both pages and retry them after a
	// new login.
	return &Poller{
		fetch:     fetch,
		listener:  listener,
		interval:  cfg.PollInterval,
		timeout:   5 * cfg.Timeout,
		threshold: cfg.FailureThreshold,
		slot:      make(chan struct{}, 1),
	}
}

// Run polls right away and then on every interval, until ctx is done.
// It then waits for the running poll, if any, to finish: its requests are
// not cancelled, they either end or time out.
func (p *Poller) Run(ctx context.Context) {
	tick := time.NewTicker(p.interval)
	defer p.wg.Wait()
	defer tick.Stop()

	log.Info("polling", "interval", p.interval)
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("stopped polling")
			return
		case <-tick.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	select {
	case p.slot <- struct{}{}:
	default:
		pollSkippedCounter.Inc()
		log.Debug("poll still running, skipping tick", "state", p.State())
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		_, _ = p.poll(ctx)
	}()
}

// PollNow runs a poll out of the schedule. If a poll is running, it waits for
// it to finish first; any tick in the meantime is dropped.
func (p *Poller) PollNow(ctx context.Context) (Snapshot, error) {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return Snapshot{}, classify(ctx.Err())
	}
	defer p.release()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.poll(ctx)
}

func (p *Poller) release() {
	<-p.slot
}

func (p *Poller) poll(ctx context.Context) (Snapshot, error) {
	p.state.Store(int32(StatePolling))
	defer p.state.Store(int32(StateIdle))

	pollCounter.Inc()
	start := time.Now()
	snap, err := p.fetch(ctx)
	pollDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.fail(err)
		return Snapshot{}, err
	}
	p.succeed(snap)
	return snap, nil
}

func (p *Poller) succeed(snap Snapshot) {
	p.mu.Lock()
	change := Diff(p.last, snap)
	p.last = &snap
	p.failures = 0
	p.lastErr = nil
	wasUp := p.available == availabilityUp
	p.available = availabilityUp
	p.mu.Unlock()

	if !change.Empty() {
		log.Info(
			"panel state changed",
			"area", snap.Area.Status,
			"area_changed", change.AreaChanged,
			"zones", change.Zones,
		)
		p.listener.OnSnapshot(snap, change)
	}
	if !wasUp {
		log.Info("panel available")
		p.listener.OnAvailabilityChanged(true)
	}
}

func (p *Poller) fail(err error) {
	p.state.Store(int32(StateBackoff))

	p.mu.Lock()
	p.failures++
	p.lastErr = err
	failures := p.failures
	down := failures >= p.threshold && p.available != availabilityDown
	if down {
		p.available = availabilityDown
	}
	p.mu.Unlock()

	kind := ErrorKind(err)
	pollErrorCounter.WithLabelValues(kind).Inc()
	log.Error("could not poll panel", "err", err, "kind", kind, "failures", failures)
	if down {
		log.Warn("panel unavailable", "failures", failures)
		p.listener.OnAvailabilityChanged(false)
	}
}

// Snapshot returns the last known good snapshot, if any.
func (p *Poller) Snapshot() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Snapshot{}, false
	}
	return *p.last, true
}

func (p *Poller) Available() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available == availabilityUp
}

// Failures returns how many polls failed in a row.
func (p *Poller) Failures() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failures
}

func (p *Poller) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Poller) State() PollerState {
	return PollerState(p.state.Load())
}
