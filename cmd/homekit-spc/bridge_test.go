package main

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	client "github.com/caarlos0/homekit-spc"
	"github.com/stretchr/testify/require"
)

type fakePanel struct {
	mu       sync.Mutex
	snap     client.Snapshot
	requests chan client.AreaStatus
	inhibits chan int
	err      error
}

func newFakePanel(snap client.Snapshot) *fakePanel {
	return &fakePanel{
		snap:     snap,
		requests: make(chan client.AreaStatus, 10),
		inhibits: make(chan int, 10),
	}
}

func (f *fakePanel) Snapshot() (client.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, true
}

func (f *fakePanel) RequestStateChange(_ context.Context, desired client.AreaStatus) error {
	f.requests <- desired
	return f.err
}

func (f *fakePanel) SetZoneInhibit(_ context.Context, zone int, inhibit bool) error {
	if inhibit {
		f.inhibits <- zone
	} else {
		f.inhibits <- -zone
	}
	return f.err
}

func testSnapshot(area client.AreaStatus) client.Snapshot {
	return client.Snapshot{
		Area: client.AreaState{Status: area},
		Zones: []client.ZoneState{
			{ID: 1, Name: "Front Door", Kind: client.KindBinary, Detector: client.DetectorContact, Status: client.ZoneNormal},
			{ID: 2, Name: "Hall", Kind: client.KindBinary, Detector: client.DetectorMotion, Status: client.ZoneNormal},
			{ID: 3, Name: "Smoke", Kind: client.KindBinary, Detector: client.DetectorSmoke, Status: client.ZoneNormal},
			{ID: 4, Name: "Key", Kind: client.KindStatus, Status: client.ZoneNormal},
		},
		Time: time.Now(),
	}
}

func setupBridge(t *testing.T, snap client.Snapshot) (*Bridge, *SecuritySystem, []*ZoneSensor, *fakePanel) {
	t.Helper()
	panel := newFakePanel(snap)
	cfg := Config{BypassZones: []int{1}, Timeout: time.Second}
	alarm := NewSecuritySystem(accessory.Info{Name: "Alarm"}, panel, cfg.Timeout)
	alarm.Update(snap)
	sensors := setupZones(panel, cfg, snap)
	b := &Bridge{}
	b.attach(panel, alarm, sensors)
	return b, alarm, sensors, panel
}

func TestBridgeBeforeAttach(t *testing.T) {
	b := &Bridge{}
	b.OnSnapshot(testSnapshot(client.AreaArmed), client.Change{First: true, Zones: []int{1}})
	b.OnAvailabilityChanged(false)
	b.OnCommandResult(client.CommandResult{Action: client.ActionArm, Err: client.ErrNotConfirmed})
}

func TestBridgeSnapshot(t *testing.T) {
	b, alarm, sensors, _ := setupBridge(t, testSnapshot(client.AreaDisarmed))
	require.Len(t, sensors, 4)
	require.NotNil(t, sensors[0].Contact)
	require.NotNil(t, sensors[0].Inhibit)
	require.True(t, sensors[0].Inhibit.On.Value())
	require.NotNil(t, sensors[1].Motion)
	require.Nil(t, sensors[1].Inhibit)
	require.NotNil(t, sensors[2].Smoke)
	require.NotNil(t, sensors[3].Contact)
	require.Equal(t, uint64(101), sensors[0].Id)

	require.Equal(t, characteristic.SecuritySystemCurrentStateDisarmed, alarm.SecuritySystem.SecuritySystemCurrentState.Value())

	next := testSnapshot(client.AreaArmed)
	next.Zones[0].Status = client.ZoneActive
	next.Zones[1].Status = client.ZoneActive
	next.Zones[2].Status = client.ZoneTamper
	next.Zones[3].Status = client.ZoneUnknown
	b.OnSnapshot(next, client.Change{AreaChanged: true, Zones: []int{1, 2, 3, 4}})

	require.Equal(t, characteristic.SecuritySystemCurrentStateAwayArm, alarm.SecuritySystem.SecuritySystemCurrentState.Value())
	require.Equal(t, characteristic.SecuritySystemCurrentStateAwayArm, alarm.SecuritySystem.SecuritySystemTargetState.Value())
	require.Equal(t, 1, alarm.Tampered.Value())

	require.Equal(t, 1, sensors[0].Contact.ContactSensorState.Value())
	require.True(t, sensors[1].Motion.MotionDetected.Value())
	require.Equal(t, 1, sensors[2].Tamper.Value())
	require.Equal(t, 0, sensors[2].Smoke.SmokeDetected.Value())
	require.Equal(t, 1, sensors[3].Contact.ContactSensorState.Value())
	require.Equal(t, 1, sensors[3].Fault.Value())

	inhibited := testSnapshot(client.AreaArmed)
	inhibited.Zones[0].Status = client.ZoneUnknown
	inhibited.Zones[0].Inhibited = true
	b.OnSnapshot(inhibited, client.Change{Zones: []int{1, 2, 3, 4}})
	require.False(t, sensors[0].Inhibit.On.Value())
	require.Equal(t, 0, sensors[0].Fault.Value())
	require.Equal(t, 0, alarm.Tampered.Value())
}

func TestBridgeAvailability(t *testing.T) {
	b, alarm, _, _ := setupBridge(t, testSnapshot(client.AreaDisarmed))
	b.OnAvailabilityChanged(false)
	require.Equal(t, 1, alarm.Fault.Value())
	b.OnAvailabilityChanged(true)
	require.Equal(t, 0, alarm.Fault.Value())
}

func TestTargetStateChange(t *testing.T) {
	_, alarm, _, panel := setupBridge(t, testSnapshot(client.AreaDisarmed))

	_, code := alarm.updateHandler(characteristic.SecuritySystemTargetStateNightArm, nil)
	require.Equal(t, hap.JsonStatusSuccess, code)
	require.Equal(t, client.AreaArmed, <-panel.requests)

	// armed shows as the mode last asked for.
	require.Eventually(t, func() bool { return !alarm.busy() }, time.Second, time.Millisecond)
	alarm.Update(testSnapshot(client.AreaArmed))
	require.Equal(t, characteristic.SecuritySystemCurrentStateNightArm, alarm.SecuritySystem.SecuritySystemCurrentState.Value())

	_, code = alarm.updateHandler(characteristic.SecuritySystemTargetStateDisarm, nil)
	require.Equal(t, hap.JsonStatusSuccess, code)
	require.Equal(t, client.AreaDisarmed, <-panel.requests)

	_, code = alarm.updateHandler(99, nil)
	require.Equal(t, hap.JsonStatusResourceDoesNotExist, code)
	_, code = alarm.updateHandler("nope", nil)
	require.Equal(t, hap.JsonStatusInvalidValueInRequest, code)
}

func TestFailedCommandReverts(t *testing.T) {
	b, alarm, sensors, panel := setupBridge(t, testSnapshot(client.AreaDisarmed))

	_ = alarm.SecuritySystem.SecuritySystemTargetState.SetValue(characteristic.SecuritySystemTargetStateAwayArm)
	b.OnCommandResult(client.CommandResult{
		Action: client.ActionArm,
		Err:    fmt.Errorf("%w: arm", client.ErrNotConfirmed),
	})
	require.Equal(t, characteristic.SecuritySystemTargetStateDisarm, alarm.SecuritySystem.SecuritySystemTargetState.Value())

	// the switch was flipped off, asking to inhibit zone 1.
	_, code := sensors[0].Inhibit.On.SetValueRequestFunc(false, nil)
	require.Equal(t, hap.JsonStatusSuccess, code)
	require.Equal(t, 1, <-panel.inhibits)
	sensors[0].Inhibit.On.SetValue(false)

	b.OnCommandResult(client.CommandResult{
		Action: client.ActionInhibit,
		Zone:   1,
		Err:    client.ErrPanel,
	})
	require.True(t, sensors[0].Inhibit.On.Value())

	// unknown zones are ignored.
	b.OnCommandResult(client.CommandResult{Action: client.ActionUninhibit, Zone: 9, Err: client.ErrPanel})
	// so are successes.
	b.OnCommandResult(client.CommandResult{Action: client.ActionDisarm})
}
