package main

import (
	"testing"
	"time"

	"github.com/brutella/hap/characteristic"
	"github.com/caarlos0/env/v11"
	client "github.com/caarlos0/homekit-spc"
	"github.com/stretchr/testify/require"
)

func TestAllZones(t *testing.T) {
	cfg := Config{
		ContactZones: []int{2, 12},
		MotionZones:  []int{10},
		BypassZones:  []int{1, 10},
		ZoneNames:    []string{"A", "", "", "C"},
	}

	zones := cfg.allZones(client.Snapshot{
		Zones: []client.ZoneState{
			{ID: 4, Name: "Hall", Kind: client.KindBinary, Detector: client.DetectorMotion},
			{ID: 1, Name: "Front Door", Kind: client.KindBinary, Detector: client.DetectorContact},
			{ID: 2, Name: "Lounge PIR", Kind: client.KindBinary, Detector: client.DetectorMotion},
			{ID: 3, Name: "Kitchen", Kind: client.KindBinary, Detector: client.DetectorSmoke},
			{ID: 5, Name: "", Kind: client.KindStatus},
		},
	})

	require.Equal(t, []zoneConfig{
		{1, "A", kindContact, true},
		{2, "Lounge PIR", kindContact, false},
		{3, "Kitchen", kindSmoke, false},
		{4, "C", kindMotion, false},
		{5, "Zone 5", kindStatus, false},
		{10, "Zone 10", kindMotion, true},
		{12, "Zone 12", kindContact, false},
	}, zones)

	require.Equal(t, `zone 1: "A" (contact)
zone 2: "Lounge PIR" (contact)
zone 3: "Kitchen" (smoke)
zone 4: "C" (motion)
zone 5: "Zone 5" (status)
zone 10: "Zone 10" (motion)
zone 12: "Zone 12" (contact)`, allZoneConfigs(zones).String())
}

func TestGetAlarmState(t *testing.T) {
	require.Equal(
		t,
		characteristic.SecuritySystemCurrentStateDisarmed,
		getAlarmState(client.AreaDisarmed, characteristic.SecuritySystemCurrentStateNightArm),
	)
	require.Equal(
		t,
		characteristic.SecuritySystemCurrentStateNightArm,
		getAlarmState(client.AreaArmed, characteristic.SecuritySystemCurrentStateNightArm),
	)
}

func TestDesiredState(t *testing.T) {
	for target, expected := range map[int]client.AreaStatus{
		characteristic.SecuritySystemTargetStateStayArm:  client.AreaArmed,
		characteristic.SecuritySystemTargetStateAwayArm:  client.AreaArmed,
		characteristic.SecuritySystemTargetStateNightArm: client.AreaArmed,
		characteristic.SecuritySystemTargetStateDisarm:   client.AreaDisarmed,
	} {
		desired, ok := desiredState(target)
		require.True(t, ok)
		require.Equal(t, expected, desired)
	}

	_, ok := desiredState(42)
	require.False(t, ok)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("HOST", "192.168.1.100")
	t.Setenv("USERNAME", "installer")
	t.Setenv("PASSWORD", "1111")
	t.Setenv("MOTION", "2,4")
	t.Setenv("ZONE_NAMES", "Front,,Garage")
	t.Setenv("POLL_INTERVAL", "1m")

	var cfg Config
	require.NoError(t, env.Parse(&cfg))
	require.Equal(t, "443", cfg.Port)
	require.True(t, cfg.LegacyTLS)
	require.Equal(t, 10*time.Second, cfg.Timeout)
	require.Equal(t, 3, cfg.FailureThreshold)
	require.Equal(t, []int{2, 4}, cfg.MotionZones)
	require.Equal(t, []string{"Front", "", "Garage"}, cfg.ZoneNames)
	require.Equal(t, ":9009", cfg.Address)
	require.Equal(t, "info", cfg.LogLevel)

	panel := cfg.panelConfig()
	require.NoError(t, panel.Validate())
	require.Equal(t, time.Minute, panel.PollInterval)
	require.Equal(t, "installer", panel.Username)
}

func TestConfigFromEnvMissing(t *testing.T) {
	t.Setenv("HOST", "")
	var cfg Config
	require.Error(t, env.Parse(&cfg))
}
