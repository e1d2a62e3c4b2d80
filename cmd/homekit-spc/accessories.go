package main

import (
	"context"
	"net/http"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	client "github.com/caarlos0/homekit-spc"
)

// ZoneSensor is a panel zone as a HomeKit sensor. Binary zones get the
// matching sensor service, status zones a contact sensor that opens when the
// zone is not normal.
type ZoneSensor struct {
	*accessory.A
	Number  int
	Kind    zoneKind
	Motion  *service.MotionSensor
	Contact *service.ContactSensor
	Smoke   *service.SmokeSensor
	Inhibit *service.Switch
	Tamper  *characteristic.StatusTampered
	Fault   *characteristic.StatusFault
}

func newZoneSensor(info accessory.Info, zone zoneConfig) *ZoneSensor {
	a := ZoneSensor{
		Number: zone.number,
		Kind:   zone.kind,
	}
	a.A = accessory.New(info, accessory.TypeSensor)

	a.Tamper = characteristic.NewStatusTampered()
	a.Fault = characteristic.NewStatusFault()

	switch zone.kind {
	case kindMotion:
		a.Motion = service.NewMotionSensor()
		a.Motion.AddC(a.Tamper.C)
		a.Motion.AddC(a.Fault.C)
		a.AddS(a.Motion.S)
	case kindSmoke:
		a.Smoke = service.NewSmokeSensor()
		a.Smoke.AddC(a.Tamper.C)
		a.Smoke.AddC(a.Fault.C)
		a.AddS(a.Smoke.S)
	default:
		a.Contact = service.NewContactSensor()
		a.Contact.AddC(a.Tamper.C)
		a.Contact.AddC(a.Fault.C)
		a.AddS(a.Contact.S)
	}

	if zone.allowInhibit {
		a.Inhibit = service.NewSwitch()
		a.AddS(a.Inhibit.S)
	}

	return &a
}

// Update reflects the zone state. The inhibit switch is on while the zone is
// watched, the way the bypass switches work.
func (sensor *ZoneSensor) Update(zone client.ZoneState) {
	tamper := boolToInt(zone.Status == client.ZoneTamper)
	if sensor.Tamper.Value() != tamper {
		log.Info("tamper", "zone", zone.ID, "status", zone.Status)
		_ = sensor.Tamper.SetValue(tamper)
	}
	tamperGauge.WithLabelValues(sensor.Name()).Set(boolToFloat(tamper == 1))

	fault := boolToInt(zone.Status == client.ZoneUnknown && !zone.Inhibited)
	if sensor.Fault.Value() != fault {
		log.Info("fault", "zone", zone.ID, "status", zone.Raw)
		_ = sensor.Fault.SetValue(fault)
	}

	inhibitedGauge.WithLabelValues(sensor.Name()).Set(boolToFloat(zone.Inhibited))
	if sensor.Inhibit != nil && sensor.Inhibit.On.Value() == zone.Inhibited {
		log.Info("inhibit", "zone", zone.ID, "status", zone.Inhibited)
		sensor.Inhibit.On.SetValue(!zone.Inhibited)
	}

	active := zone.Active()
	if sensor.Kind == kindStatus {
		active = zone.Status != client.ZoneNormal
	}
	activeGauge.WithLabelValues(sensor.Name()).Set(boolToFloat(active))

	switch {
	case sensor.Motion != nil:
		if sensor.Motion.MotionDetected.Value() == active {
			return
		}
		sensor.Motion.MotionDetected.SetValue(active)
		log.Info("motion", "zone", zone.ID, "status", active, "raw", zone.Raw)
	case sensor.Smoke != nil:
		current := boolToInt(active)
		if sensor.Smoke.SmokeDetected.Value() == current {
			return
		}
		_ = sensor.Smoke.SmokeDetected.SetValue(current)
		log.Info("smoke", "zone", zone.ID, "status", active, "raw", zone.Raw)
	case sensor.Contact != nil:
		current := boolToInt(active)
		if sensor.Contact.ContactSensorState.Value() == current {
			return
		}
		_ = sensor.Contact.ContactSensorState.SetValue(current)
		log.Info("contact", "zone", zone.ID, "status", active, "input", zone.Input, "raw", zone.Raw)
	}
}

type inhibitor interface {
	SetZoneInhibit(ctx context.Context, zone int, inhibit bool) error
}

func setupZones(panel inhibitor, cfg Config, snap client.Snapshot) []*ZoneSensor {
	var sensors []*ZoneSensor
	for _, zone := range cfg.allZones(snap) {
		a := newZoneSensor(accessory.Info{
			Name:         zone.name,
			Manufacturer: manufacturer,
		}, zone)
		a.Id = uint64(100 + zone.number)

		if a.Inhibit != nil {
			a.Inhibit.On.SetValue(true)
			a.Inhibit.On.SetValueRequestFunc = inhibitHandler(panel, cfg.Timeout, zone)
		}
		if z, ok := snap.Zone(zone.number); ok {
			a.Update(z)
		}
		sensors = append(sensors, a)
	}
	return sensors
}

func inhibitHandler(
	panel inhibitor,
	timeout time.Duration,
	zone zoneConfig,
) func(interface{}, *http.Request) (interface{}, int) {
	return func(value interface{}, _ *http.Request) (response interface{}, code int) {
		v, ok := value.(bool)
		if !ok {
			return nil, hap.JsonStatusInvalidValueInRequest
		}
		log.Info("set zone inhibit", "zone", zone.number, "watched", v)
		// the result arrives through the listener, which reverts the switch
		// if the panel did not take it.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout(timeout))
			defer cancel()
			_ = panel.SetZoneInhibit(ctx, zone.number, !v)
		}()
		return nil, hap.JsonStatusSuccess
	}
}
