package spc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/sync/cio"
)

// pages are small, anything bigger than this is not the panel talking.
const maxBodySize = 2 << 20

// Request is a request to one of the panel's pages.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

type Response struct {
	StatusCode int
	Body       []byte
}

// Transport sends a single request to the panel. Implementations must not
// retry.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport talks HTTP(S) to the panel.
// The TLS relaxation it might carry only applies to its own connections, to
// the configured panel.
type HTTPTransport struct {
	client  *http.Client
	base    *url.URL
	timeout time.Duration
}

func NewTransport(cfg Config) (*HTTPTransport, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.baseURL())
	if err != nil {
		return nil, fmt.Errorf("invalid panel address: %w", err)
	}

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	tr := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig(cfg.LegacyTLS),
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		// the panel's web server handles one connection at a time, and
		// does not like them being reused.
		DisableKeepAlives: true,
		MaxConnsPerHost:   1,
	}

	return &HTTPTransport{
		base:    base,
		timeout: cfg.Timeout,
		client: &http.Client{
			Transport: tr,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if req.URL.Host != base.Host {
					return http.ErrUseLastResponse
				}
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}, nil
}

func tlsConfig(legacy bool) *tls.Config {
	if !legacy {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS10,
		MaxVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_RSA_WITH_AES_256_CBC_SHA,
			tls.TLS_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
		// self-signed certificate, issued to nobody in particular.
		InsecureSkipVerify: true, //nolint:gosec
		Renegotiation:      tls.RenegotiateFreelyAsClient,
	}
}

// Send bounds dialing, the handshake and the response headers with the
// configured timeout. The body may take longer, as long as it does not stall
// for that long.
func (t *HTTPTransport) Send(ctx context.Context, req Request) (*Response, error) {
	u := *t.base
	u.Path = req.Path
	u.RawQuery = req.Query.Encode()

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	log.Debug("request", "method", req.Method, "path", req.Path, "page", req.Query.Get("page"))
	resp, err := t.client.Do(hreq)
	if err != nil {
		return nil, classify(fmt.Errorf("%s %s: %w", req.Method, req.Path, err))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(stallReader{cio.TimeoutReader(resp.Body, t.timeout)}, maxBodySize))
	if err != nil {
		return nil, classify(fmt.Errorf("could not read %s: %w", req.Path, err))
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       b,
	}, nil
}

// stallReader reads into its own buffer, a read that timed out may still
// land on it after Read returned.
type stallReader struct {
	r io.Reader
}

func (s stallReader) Read(p []byte) (int, error) {
	buf := make([]byte, len(p))
	n, err := s.r.Read(buf)
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, fmt.Errorf("body stalled: %w", err)
	}
	return copy(p, buf[:n]), err
}

// CloseIdleConnections drops any connection kept around.
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if isTLS(err) {
		return fmt.Errorf("%w: %w", ErrTLS, err)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isTLS(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		alertErr     tls.AlertError
		recordErr    tls.RecordHeaderError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &alertErr),
		errors.As(err, &recordErr),
		errors.As(err, &authorityErr),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidErr):
		return true
	}
	// most handshake failures are plain errors.
	return strings.Contains(err.Error(), "tls: ")
}
