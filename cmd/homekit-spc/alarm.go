package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	client "github.com/caarlos0/homekit-spc"
)

type stateChanger interface {
	RequestStateChange(ctx context.Context, desired client.AreaStatus) error
}

type SecuritySystem struct {
	*accessory.A
	SecuritySystem *service.SecuritySystem
	Tampered       *characteristic.StatusTampered
	Fault          *characteristic.StatusFault

	panel   stateChanger
	timeout time.Duration

	mu        sync.Mutex
	armedMode int
	pending   int
}

func NewSecuritySystem(info accessory.Info, panel stateChanger, timeout time.Duration) *SecuritySystem {
	a := &SecuritySystem{
		panel:     panel,
		timeout:   timeout,
		armedMode: characteristic.SecuritySystemCurrentStateAwayArm,
	}
	a.A = accessory.New(info, accessory.TypeSecuritySystem)

	a.SecuritySystem = service.NewSecuritySystem()
	a.AddS(a.SecuritySystem.S)

	a.Tampered = characteristic.NewStatusTampered()
	a.SecuritySystem.AddC(a.Tampered.C)

	a.Fault = characteristic.NewStatusFault()
	a.SecuritySystem.AddC(a.Fault.C)

	a.SecuritySystem.SecuritySystemTargetState.SetValueRequestFunc = a.updateHandler

	return a
}

func (a *SecuritySystem) busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending > 0
}

func (a *SecuritySystem) currentState(area client.AreaStatus) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return getAlarmState(area, a.armedMode)
}

// Update reflects the panel state. Any zone in tamper shows as a tampered
// system.
func (a *SecuritySystem) Update(snap client.Snapshot) {
	state := a.currentState(snap.Area.Status)
	armStateGauge.Set(float64(state))
	if a.SecuritySystem.SecuritySystemCurrentState.Value() != state {
		err := a.SecuritySystem.SecuritySystemCurrentState.SetValue(state)
		log.Info("set current state", "state", state, "area", snap.Area.Status, "err", err)
	}
	// keep the target in line with changes made at the keypad.
	if target := a.SecuritySystem.SecuritySystemTargetState.Value(); target != state && !a.busy() {
		if desired, ok := desiredState(target); !ok || desired != snap.Area.Status {
			_ = a.SecuritySystem.SecuritySystemTargetState.SetValue(state)
		}
	}

	var tamper bool
	for _, z := range snap.Zones {
		if z.Status == client.ZoneTamper {
			tamper = true
			break
		}
	}
	if v := boolToInt(tamper); a.Tampered.Value() != v {
		_ = a.Tampered.SetValue(v)
		log.Info("alarm status", "tamper", tamper)
	}
}

// SetAvailable flags the system as faulty while the panel can't be reached.
func (a *SecuritySystem) SetAvailable(available bool) {
	availableGauge.Set(boolToFloat(available))
	if v := boolToInt(!available); a.Fault.Value() != v {
		_ = a.Fault.SetValue(v)
		log.Info("alarm status", "available", available)
	}
}

// Revert puts the target state back to what the panel reports, after a
// command that did not go through.
func (a *SecuritySystem) Revert(area client.AreaStatus) {
	state := a.currentState(area)
	log.Warn("reverting target state", "state", state)
	_ = a.SecuritySystem.SecuritySystemTargetState.SetValue(state)
	if a.SecuritySystem.SecuritySystemCurrentState.Value() != state {
		_ = a.SecuritySystem.SecuritySystemCurrentState.SetValue(state)
	}
}

func (a *SecuritySystem) updateHandler(
	v interface{},
	_ *http.Request,
) (response interface{}, code int) {
	target, ok := v.(int)
	if !ok {
		return nil, hap.JsonStatusInvalidValueInRequest
	}
	desired, ok := desiredState(target)
	if !ok {
		return nil, hap.JsonStatusResourceDoesNotExist
	}

	a.mu.Lock()
	if desired == client.AreaArmed {
		// target and current armed states share their values.
		a.armedMode = target
	}
	a.pending++
	a.mu.Unlock()

	log.Info("requested state change", "target", target, "desired", desired)
	// the panel takes a while to confirm, HomeKit does not wait that long.
	// The result comes back through the listener.
	go func() {
		defer func() {
			a.mu.Lock()
			a.pending--
			a.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout(a.timeout))
		defer cancel()
		_ = a.panel.RequestStateChange(ctx, desired)
	}()
	return nil, hap.JsonStatusSuccess
}

// commandTimeout bounds a command together with its confirmation polls.
func commandTimeout(timeout time.Duration) time.Duration {
	return 15*timeout + 5*time.Second
}
