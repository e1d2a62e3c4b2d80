package spc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Session is an authenticated web session with the panel.
type Session struct {
	ID string

	expires atomic.Int64 // unix nanos
	invalid atomic.Bool
}

func (s *Session) Expires() time.Time {
	return time.Unix(0, s.expires.Load())
}

func (s *Session) valid(now time.Time) bool {
	return !s.invalid.Load() && now.Before(s.Expires())
}

func (s *Session) touch(now time.Time, ttl time.Duration) {
	s.expires.Store(now.Add(ttl).UnixNano())
}

// Verdict is what a Classifier thinks of a panel response.
type Verdict uint8

const (
	VerdictOK Verdict = iota
	// VerdictExpired means the session is no longer good, log in again.
	VerdictExpired
	// VerdictDenied means the credentials were refused.
	VerdictDenied
	// VerdictServerError means the panel failed for some other reason.
	VerdictServerError
)

func (v Verdict) String() string {
	switch v {
	case VerdictExpired:
		return "expired"
	case VerdictDenied:
		return "denied"
	case VerdictServerError:
		return "server error"
	default:
		return "ok"
	}
}

// Classifier tells expired sessions, bad credentials and server errors
// apart. How the panel signals each of those depends on its firmware.
type Classifier func(resp *Response) Verdict

// DefaultClassifier knows how the SPC web UI behaves: it answers with the
// login page when the session is gone.
func DefaultClassifier(resp *Response) Verdict {
	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return VerdictExpired
	case resp.StatusCode >= http.StatusBadRequest:
		return VerdictServerError
	case isLoginPage(resp.Body):
		if isAccessDenied(resp.Body) {
			return VerdictDenied
		}
		return VerdictExpired
	default:
		return VerdictOK
	}
}

// SessionManager logs in to the panel and sends requests with the current
// session, logging in again when it expires.
// Only one login is ever in flight.
type SessionManager struct {
	transport Transport
	classify  Classifier
	user      string
	pass      string
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time

	logins singleflight.Group

	mu      sync.Mutex
	session *Session
	info    PanelInfo
}

func NewSessionManager(cfg Config, transport Transport, classify Classifier) *SessionManager {
	cfg = cfg.withDefaults()
	if classify == nil {
		classify = DefaultClassifier
	}
	return &SessionManager{
		transport: transport,
		classify:  classify,
		user:      cfg.Username,
		pass:      cfg.Password,
		ttl:       cfg.SessionTTL,
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
}

// Info returns what was learned about the panel on the last login.
func (m *SessionManager) Info() PanelInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

func (m *SessionManager) current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && m.session.valid(m.now()) {
		return m.session
	}
	return nil
}

// EnsureSession returns the current session, logging in if there is none.
func (m *SessionManager) EnsureSession(ctx context.Context) (*Session, error) {
	if s := m.current(); s != nil {
		return s, nil
	}

	ch := m.logins.DoChan("login", func() (any, error) {
		// someone else might have just logged in.
		if s := m.current(); s != nil {
			return s, nil
		}
		// one caller going away should not fail everyone waiting on this.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		return m.login(ctx)
	})

	select {
	case <-ctx.Done():
		return nil, classify(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	}
}

func (m *SessionManager) login(ctx context.Context) (*Session, error) {
	log.Debug("logging in", "user", m.user)
	loginCounter.Inc()
	resp, err := m.transport.Send(ctx, makeLoginRequest(m.user, m.pass))
	if err != nil {
		loginErrorCounter.Inc()
		return nil, fmt.Errorf("could not login: %w", err)
	}

	if err := checkLogin(resp); err != nil {
		loginErrorCounter.Inc()
		return nil, err
	}

	id, err := parseSessionID(resp.Body)
	if err != nil {
		loginErrorCounter.Inc()
		return nil, fmt.Errorf("%w: could not login: %w", ErrAuth, err)
	}

	s := &Session{ID: id}
	now := m.now()
	s.touch(now, m.ttl)

	model, site := parseTitle(resp.Body)
	m.mu.Lock()
	m.session = s
	m.info = PanelInfo{
		Model:  model,
		Site:   site,
		Serial: parseSerial(resp.Body),
	}
	m.mu.Unlock()

	log.Info("logged in", "model", model, "site", site)
	return s, nil
}

func checkLogin(resp *Response) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: login returned http %d", ErrAuth, resp.StatusCode)
	}
	if !isLoginPage(resp.Body) {
		return nil
	}
	if isAccessDenied(resp.Body) {
		return fmt.Errorf("%w: access denied", ErrAuth)
	}
	return fmt.Errorf("%w: still on login page", ErrAuth)
}

// Invalidate drops s. It is never used again.
func (m *SessionManager) Invalidate(s *Session) {
	if s == nil {
		return
	}
	s.invalid.Store(true)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == s {
		m.session = nil
	}
}

// Request sends req with the current session. If the panel says the session
// expired, it logs in again and retries once.
func (m *SessionManager) Request(ctx context.Context, req Request) (*Response, error) {
	for attempt := 0; ; attempt++ {
		s, err := m.EnsureSession(ctx)
		if err != nil {
			return nil, err
		}

		requestCounter.WithLabelValues(req.Query.Get("page")).Inc()
		resp, err := m.transport.Send(ctx, withSession(req, s))
		if err != nil {
			requestErrorCounter.WithLabelValues(ErrorKind(err)).Inc()
			return nil, err
		}

		switch v := m.classify(resp); v {
		case VerdictOK:
			s.touch(m.now(), m.ttl)
			return resp, nil
		case VerdictExpired:
			m.Invalidate(s)
			if attempt == 0 {
				log.Info("session expired, logging in again", "request", describe(req))
				continue
			}
			requestErrorCounter.WithLabelValues("auth").Inc()
			return nil, fmt.Errorf("%w: session rejected right after login: %s", ErrAuth, describe(req))
		case VerdictDenied:
			m.Invalidate(s)
			requestErrorCounter.WithLabelValues("auth").Inc()
			return nil, fmt.Errorf("%w: access denied: %s", ErrAuth, describe(req))
		default:
			requestErrorCounter.WithLabelValues("panel").Inc()
			return nil, fmt.Errorf("%w: %s returned http %d", ErrPanel, describe(req), resp.StatusCode)
		}
	}
}

// IsAuth is a shorthand for errors.Is(err, ErrAuth).
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}
