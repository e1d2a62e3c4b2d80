package spc

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	logp "github.com/charmbracelet/log"
	"github.com/j-keck/arping"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "spc",
})

// SetLogLevel changes the level of the client logs.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

type Option func(*options)

type options struct {
	transport    Transport
	classify     Classifier
	confirmDelay time.Duration
}

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithClassifier changes how responses are told apart, see Classifier.
func WithClassifier(c Classifier) Option {
	return func(o *options) { o.classify = c }
}

// WithConfirmDelay sets how long to wait before polling again when the
// panel does not reflect a command yet.
func WithConfirmDelay(d time.Duration) Option {
	return func(o *options) { o.confirmDelay = d }
}

// Panel keeps the state of one SPC panel in sync, and sends it commands.
type Panel struct {
	cfg        Config
	http       *HTTPTransport
	session    *SessionManager
	poller     *Poller
	dispatcher *Dispatcher
}

func New(cfg Config, listener Listener, opts ...Option) (*Panel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg = cfg.withDefaults()

	o := options{confirmDelay: defaultConfirmDelay}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Panel{cfg: cfg}
	if o.transport == nil {
		t, err := NewTransport(cfg)
		if err != nil {
			return nil, err
		}
		p.http = t
		o.transport = t
	}

	p.session = NewSessionManager(cfg, o.transport, o.classify)
	p.poller = NewPoller(cfg, p.fetch, listener)
	p.dispatcher = NewDispatcher(p.session, p.poller, listener)
	p.dispatcher.delay = o.confirmDelay
	return p, nil
}

func (p *Panel) fetch(ctx context.Context) (Snapshot, error) {
	summary, err := p.session.Request(ctx, makePageRequest(pageSummary))
	if err != nil {
		return Snapshot{}, fmt.Errorf("could not get arm state: %w", err)
	}
	zones, err := p.session.Request(ctx, makePageRequest(pageZones))
	if err != nil {
		return Snapshot{}, fmt.Errorf("could not get zones: %w", err)
	}

	snap, err := Parse(RawState{Summary: summary.Body, Zones: zones.Body})
	if err != nil {
		return Snapshot{}, err
	}
	for _, w := range snap.Warnings {
		parseWarningCounter.Inc()
		log.Warn("zone left out", "reason", w)
	}

	info := p.session.Info()
	if snap.Info.Model == "" {
		snap.Info.Model = info.Model
	}
	if snap.Info.Site == "" {
		snap.Info.Site = info.Site
	}
	snap.Info.Serial = info.Serial
	snap.Time = time.Now()
	return snap, nil
}

// Run polls the panel until ctx is done.
func (p *Panel) Run(ctx context.Context) {
	p.poller.Run(ctx)
}

// Refresh polls the panel right away.
func (p *Panel) Refresh(ctx context.Context) (Snapshot, error) {
	return p.poller.PollNow(ctx)
}

// Snapshot returns the last known state of the panel. It never waits on the
// panel.
func (p *Panel) Snapshot() (Snapshot, bool) {
	return p.poller.Snapshot()
}

func (p *Panel) Available() bool {
	return p.poller.Available()
}

// LastError returns the error of the last poll, nil if it went well.
func (p *Panel) LastError() error {
	return p.poller.LastError()
}

func (p *Panel) Info() PanelInfo {
	return p.session.Info()
}

// RequestStateChange arms or disarms the panel, and waits for the panel
// state to confirm it.
func (p *Panel) RequestStateChange(ctx context.Context, desired AreaStatus) error {
	return p.dispatcher.SetAreaState(ctx, desired)
}

func (p *Panel) SetZoneInhibit(ctx context.Context, zone int, inhibit bool) error {
	return p.dispatcher.SetZoneInhibit(ctx, zone, inhibit)
}

// Close drops the connections to the panel.
func (p *Panel) Close() error {
	if p.http != nil {
		p.http.CloseIdleConnections()
	}
	return nil
}

// MacAddress gets the hardware address of the given host, which must be in
// the local network.
func MacAddress(host string) (string, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return "", fmt.Errorf("could not resolve %s: %w", host, err)
		}
		if len(ips) == 0 {
			return "", fmt.Errorf("could not resolve %s", host)
		}
		ip = ips[0]
	}
	hw, _, err := arping.Ping(ip)
	if err != nil {
		return "", fmt.Errorf("could not get the mac address: %w", err)
	}
	return hw.String(), nil
}
