package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/brutella/hap/characteristic"
	client "github.com/caarlos0/homekit-spc"
	"golang.org/x/exp/slices"
)

type Config struct {
	Host             string        `env:"HOST,notEmpty"`
	Port             string        `env:"PORT"              envDefault:"443"`
	Username         string        `env:"USERNAME,notEmpty"`
	Password         string        `env:"PASSWORD,notEmpty"`
	PollInterval     time.Duration `env:"POLL_INTERVAL"     envDefault:"30s"`
	LegacyTLS        bool          `env:"LEGACY_TLS"        envDefault:"true"`
	Timeout          time.Duration `env:"TIMEOUT"           envDefault:"10s"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"3"`
	MotionZones      []int         `env:"MOTION"`
	ContactZones     []int         `env:"CONTACT"`
	BypassZones      []int         `env:"BYPASS"`
	ZoneNames        []string      `env:"ZONE_NAMES"`
	Address          string        `env:"LISTEN"            envDefault:":9009"`
	LogLevel         string        `env:"LOG_LEVEL"         envDefault:"info"`
}

func (c Config) panelConfig() client.Config {
	return client.Config{
		Host:             c.Host,
		Port:             c.Port,
		Username:         c.Username,
		Password:         c.Password,
		LegacyTLS:        c.LegacyTLS,
		PollInterval:     c.PollInterval,
		Timeout:          c.Timeout,
		FailureThreshold: c.FailureThreshold,
	}
}

type zoneKind uint8

const (
	kindStatus zoneKind = iota
	kindMotion
	kindContact
	kindSmoke
)

func (z zoneKind) String() string {
	switch z {
	case kindMotion:
		return "motion"
	case kindContact:
		return "contact"
	case kindSmoke:
		return "smoke"
	default:
		return "status"
	}
}

type zoneConfig struct {
	number       int
	name         string
	kind         zoneKind
	allowInhibit bool
}

type allZoneConfigs []zoneConfig

func (a allZoneConfigs) String() string {
	var zones []string
	for _, zone := range a {
		zones = append(
			zones,
			fmt.Sprintf("zone %d: %q (%s)", zone.number, zone.name, zone.kind.String()),
		)
	}
	return strings.Join(zones, "\n")
}

// zoneName prefers ZONE_NAMES, then whatever the panel calls the zone.
func (c Config) zoneName(n int, panelName string) string {
	names := c.ZoneNames
	if len(names) > n-1 {
		if n := names[n-1]; n != "" {
			return n
		}
	}
	if panelName != "" {
		return panelName
	}
	return fmt.Sprintf("Zone %d", n)
}

func (c Config) zoneKind(zone client.ZoneState) zoneKind {
	switch {
	case slices.Contains(c.MotionZones, zone.ID):
		return kindMotion
	case slices.Contains(c.ContactZones, zone.ID):
		return kindContact
	case zone.Kind == client.KindStatus:
		return kindStatus
	}
	switch zone.Detector {
	case client.DetectorMotion:
		return kindMotion
	case client.DetectorContact:
		return kindContact
	case client.DetectorSmoke:
		return kindSmoke
	default:
		return kindStatus
	}
}

// allZones lists the zones the panel reports, plus the ones explicitly
// configured, sorted by number.
func (c Config) allZones(snap client.Snapshot) []zoneConfig {
	var zones []zoneConfig
	seen := map[int]bool{}
	for _, z := range snap.Zones {
		seen[z.ID] = true
		zones = append(zones, zoneConfig{
			number:       z.ID,
			name:         c.zoneName(z.ID, z.Name),
			kind:         c.zoneKind(z),
			allowInhibit: slices.Contains(c.BypassZones, z.ID),
		})
	}
	add := func(numbers []int, kind zoneKind) {
		for _, n := range numbers {
			if seen[n] {
				continue
			}
			seen[n] = true
			zones = append(zones, zoneConfig{
				number:       n,
				name:         c.zoneName(n, ""),
				kind:         kind,
				allowInhibit: slices.Contains(c.BypassZones, n),
			})
		}
	}
	add(c.MotionZones, kindMotion)
	add(c.ContactZones, kindContact)

	slices.SortFunc(zones, func(a, b zoneConfig) int {
		return a.number - b.number
	})
	return zones
}

// getAlarmState maps the panel state onto a HomeKit current state. The panel
// only knows armed or not, so an armed panel shows as the mode that was last
// asked for.
func getAlarmState(area client.AreaStatus, armedMode int) int {
	if area == client.AreaDisarmed {
		return characteristic.SecuritySystemCurrentStateDisarmed
	}
	return armedMode
}

// desiredState maps a HomeKit target state onto what the panel can do.
func desiredState(target int) (client.AreaStatus, bool) {
	switch target {
	case characteristic.SecuritySystemTargetStateStayArm,
		characteristic.SecuritySystemTargetStateAwayArm,
		characteristic.SecuritySystemTargetStateNightArm:
		return client.AreaArmed, true
	case characteristic.SecuritySystemTargetStateDisarm:
		return client.AreaDisarmed, true
	default:
		return client.AreaDisarmed, false
	}
}
