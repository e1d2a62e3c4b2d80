package main

import (
	"context"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/caarlos0/env/v11"
	client "github.com/caarlos0/homekit-spc"
	"github.com/cenkalti/backoff/v4"
	logp "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed index.html
var index string

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "homekit",
})

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const manufacturer = "Vanderbilt"

func main() {
	log.Info(
		"homekit-spc",
		"version", version,
		"commit", commit,
		"date", date,
		"info", strings.Join([]string{
			"Homekit bridge for Vanderbilt SPC alarm systems",
			"© Carlos Alexandro Becker",
			"https://becker.software",
		}, "\n"),
	)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(
			"could not parse env",
			"err",
			strings.TrimPrefix(strings.ReplaceAll(err.Error(), "; ", "\n"), "env: ")+"\n",
		)
	}

	level, err := logp.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal("invalid log level", "level", cfg.LogLevel, "err", err)
	}
	log.SetLevel(level)
	client.SetLogLevel(level)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c
		log.Info("stopping server")
		signal.Stop(c)
		cancel()
	}()

	bridgeListener := &Bridge{}
	panel, err := client.New(cfg.panelConfig(), bridgeListener)
	if err != nil {
		log.Fatal("could not create panel client", "err", err)
	}
	defer func() {
		if err := panel.Close(); err != nil {
			log.Error("could not close panel client", "err", err)
		}
	}()

	snap, err := initialSnapshot(ctx, panel)
	if err != nil {
		log.Fatal("could not init accessories", "err", err)
	}

	serial := snap.Info.Serial
	if serial == "" {
		macAddr, err := client.MacAddress(cfg.Host)
		if err != nil {
			log.Warn(
				"could not get the mac address, needs 'cap_net_raw+ep' capabilities",
				"err", err,
			)
		}
		serial = macAddr
	}
	log.Info(
		"got alarm system information",
		"manufacturer", manufacturer,
		"model", snap.Info.Model,
		"site", snap.Info.Site,
		"serial", serial,
	)

	zones := cfg.allZones(snap)
	log.Info("loading accessories", "zones", allZoneConfigs(zones).String())

	bridge := accessory.NewBridge(accessory.Info{
		Name:         "Alarm Bridge",
		Manufacturer: manufacturer,
		Firmware:     version,
	})

	name := "Alarm"
	if snap.Info.Site != "" {
		name = snap.Info.Site
	}
	alarm := NewSecuritySystem(accessory.Info{
		Name:         name,
		SerialNumber: serial,
		Manufacturer: manufacturer,
		Model:        snap.Info.Model,
	}, panel, cfg.Timeout)
	alarm.Id = 2
	alarm.Update(snap)
	alarm.SetAvailable(panel.Available())
	_ = alarm.SecuritySystem.SecuritySystemTargetState.SetValue(
		alarm.SecuritySystem.SecuritySystemCurrentState.Value(),
	)

	sensors := setupZones(panel, cfg, snap)
	bridgeListener.attach(panel, alarm, sensors)

	fs := hap.NewFsStore("./db")

	server, err := hap.NewServer(fs, bridge.A, securityAccessories(alarm, sensors)...)
	if err != nil {
		log.Fatal("fail to create server", "error", err)
	}
	server.Addr = cfg.Address
	server.ServeMux().Handle("/metrics", promhttp.Handler())
	server.ServeMux().Handle("/", statusHandler(panel, cfg))

	done := make(chan struct{})
	go func() {
		defer close(done)
		panel.Run(ctx)
	}()

	log.Info("starting server", "addr", server.Addr)
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to close server", "err", err)
	}
	cancel()
	<-done
}

type refresher interface {
	Refresh(ctx context.Context) (client.Snapshot, error)
}

// initialSnapshot keeps trying to get the panel state, as accessories can't
// be created without it. Wrong credentials are not retried.
func initialSnapshot(ctx context.Context, panel refresher) (client.Snapshot, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Second * 30
	bo.MaxElapsedTime = 5 * time.Minute

	var snap client.Snapshot
	err := backoff.RetryNotify(func() error {
		var err error
		snap, err = panel.Refresh(ctx)
		if client.IsAuth(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		log.Error("could not get panel state", "err", err, "kind", client.ErrorKind(err), "retry_in", d)
	})
	return snap, err
}

func securityAccessories(alarm *SecuritySystem, sensors []*ZoneSensor) []*accessory.A {
	result := []*accessory.A{alarm.A}
	for _, c := range sensors {
		result = append(result, c.A)
	}
	return result
}

type statusSource interface {
	snapshotter
	Available() bool
	LastError() error
}

type PageItem struct {
	Number    int
	Name      string
	Area      string
	Type      string
	Status    string
	Input     string
	Active    bool
	Tamper    bool
	Inhibited bool
}

func statusHandler(panel statusSource, cfg Config) http.Handler {
	tpl := template.Must(template.New("index").Parse(index))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := struct {
			State     string
			Site      string
			Model     string
			Available bool
			Error     string
			Updated   string
			Zones     []PageItem
		}{
			State:     "Unknown",
			Available: panel.Available(),
		}
		if err := panel.LastError(); err != nil {
			data.Error = err.Error()
		}

		if snap, ok := panel.Snapshot(); ok {
			data.State = snap.Area.Status.String()
			data.Site = snap.Info.Site
			data.Model = snap.Info.Model
			data.Updated = snap.Time.Format(time.RFC1123)
			for _, zone := range snap.Zones {
				data.Zones = append(data.Zones, PageItem{
					Number:    zone.ID,
					Name:      cfg.zoneName(zone.ID, zone.Name),
					Area:      zone.AreaName,
					Type:      zone.Type,
					Status:    zone.Status.String(),
					Input:     zone.Input,
					Active:    zone.Active(),
					Tamper:    zone.Status == client.ZoneTamper,
					Inhibited: zone.Inhibited,
				})
			}
		}

		if err := tpl.Execute(w, data); err != nil {
			log.Error("could not render status page", "err", err)
		}
	})
}
