package main

import (
	"sync"

	client "github.com/caarlos0/homekit-spc"
)

type snapshotter interface {
	Snapshot() (client.Snapshot, bool)
}

// Bridge feeds what the panel reports into the HomeKit accessories.
// The first snapshot arrives before the accessories exist, so everything is
// a no-op until attach.
type Bridge struct {
	mu      sync.Mutex
	panel   snapshotter
	alarm   *SecuritySystem
	sensors map[int]*ZoneSensor
}

var _ client.Listener = &Bridge{}

func (b *Bridge) attach(panel snapshotter, alarm *SecuritySystem, sensors []*ZoneSensor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panel = panel
	b.alarm = alarm
	b.sensors = make(map[int]*ZoneSensor, len(sensors))
	for _, s := range sensors {
		b.sensors[s.Number] = s
	}
}

func (b *Bridge) OnSnapshot(snap client.Snapshot, change client.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alarm == nil {
		return
	}

	// tamper is rolled up from the zones, so this runs on any change.
	b.alarm.Update(snap)
	for _, id := range change.Zones {
		sensor, ok := b.sensors[id]
		if !ok {
			continue
		}
		zone, ok := snap.Zone(id)
		if !ok {
			log.Warn("zone went missing", "zone", id)
			continue
		}
		sensor.Update(zone)
	}
}

func (b *Bridge) OnAvailabilityChanged(available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alarm == nil {
		return
	}
	b.alarm.SetAvailable(available)
}

func (b *Bridge) OnCommandResult(result client.CommandResult) {
	if result.OK() {
		return
	}
	commandErrorCounter.WithLabelValues(result.Action.String()).Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alarm == nil || b.panel == nil {
		return
	}
	snap, ok := b.panel.Snapshot()
	if !ok {
		return
	}

	switch result.Action {
	case client.ActionArm, client.ActionDisarm:
		b.alarm.Revert(snap.Area.Status)
	case client.ActionInhibit, client.ActionUninhibit:
		sensor, ok := b.sensors[result.Zone]
		if !ok || sensor.Inhibit == nil {
			return
		}
		zone, ok := snap.Zone(result.Zone)
		if !ok {
			return
		}
		log.Warn("reverting inhibit switch", "zone", result.Zone, "inhibited", zone.Inhibited)
		sensor.Inhibit.On.SetValue(!zone.Inhibited)
	}
}
