package spc

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const title = "<title>SPC4000 - Beach House</title>"

func loginPage(denied bool) []byte {
	msg := ""
	if denied {
		msg = "<p><font color=red>Access denied</font></p>"
	}
	return []byte(`<html><head>` + title + `</head><body>` + msg + `
<form method="post" action="login.htm?action=login&language=0">
<input name="userid"><input type="password" name="password">
</form></body></html>`)
}

func loggedInPage(sid string) []byte {
	return []byte(`<html><head>` + title + `</head><body>
<div>S/N: 1A2B3C4D</div>
<a href="secure.htm?session=` + sid + `&page=system_summary&language=0">Summary</a>
</body></html>`)
}

func summaryPage(state string) []byte {
	return []byte(`<HTML><HEAD>` + title + `</HEAD><BODY>
<TABLE>
<TR><TD class="hdr">Area</TD><TD class="hdr">State</TD></TR>
<TR><TD>All Areas</TD><TD class="val">` + state + `</TD></TR>
<TR><TD>1 House</TD><TD>` + state + `</TD></TR>
</TABLE></BODY></HTML>`)
}

func summaryPageWithMessage(state, msg string) []byte {
	page := string(summaryPage(state))
	return []byte(strings.Replace(
		page,
		"<TABLE>",
		`<font size=2 color=red><b>`+msg+`</b></font><TABLE>`,
		1,
	))
}

type zoneRow struct {
	id     int
	name   string
	kind   string
	input  string
	status string
}

func (z zoneRow) String() string {
	return fmt.Sprintf(`<TR HEIGHT=20>
<TD ALIGN="center">%d %s</TD>
<TD ALIGN="center">1 House</TD>
<TD ALIGN="center">%s</TD>
<!-- <TD ALIGN="center"><font color=green><b>%s</b></font></TD> -->
<TD ALIGN="center"><FONT COLOR=green>%s</FONT></TD>
</TR>
`, z.id, z.name, z.kind, z.input, z.status)
}

func zonesPage(rows ...fmt.Stringer) []byte {
	var sb strings.Builder
	sb.WriteString(`<HTML><HEAD>` + title + `</HEAD><BODY><TABLE>
<TR HEIGHT=20><TH>Zone</TH><TH>Area</TH><TH>Type</TH><TH>Status</TH></TR>
`)
	for _, r := range rows {
		sb.WriteString(r.String())
	}
	sb.WriteString(`</TABLE></BODY></HTML>`)
	return []byte(sb.String())
}

type rawRow string

func (r rawRow) String() string { return string(r) }

func defaultZones(z2 string) []fmt.Stringer {
	return []fmt.Stringer{
		zoneRow{1, "Front Door", "Entry/Exit", "Closed", "Normal"},
		zoneRow{2, "Hall PIR", "Alarm", "Closed", z2},
	}
}

// fakeTransport plays the panel for the session manager.
type fakeTransport struct {
	mu       sync.Mutex
	logins   int
	sends    map[string]int
	sessions []string
	expired  map[string]bool
	denied   bool

	// loginGate, if set, blocks logins until closed.
	loginGate chan struct{}
	// page, if set, answers secure pages.
	page func(req Request) (*Response, error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sends:   map[string]int{},
		expired: map[string]bool{},
	}
}

func (f *fakeTransport) Send(ctx context.Context, req Request) (*Response, error) {
	if req.Path == pathLogin {
		if f.loginGate != nil {
			select {
			case <-f.loginGate:
			case <-ctx.Done():
				return nil, classify(ctx.Err())
			}
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.logins++
		if f.denied {
			return &Response{StatusCode: 200, Body: loginPage(true)}, nil
		}
		sid := fmt.Sprintf("0x%04X", f.logins)
		f.sessions = append(f.sessions, sid)
		return &Response{StatusCode: 200, Body: loggedInPage(sid)}, nil
	}

	f.mu.Lock()
	page := req.Query.Get("page")
	f.sends[page]++
	expired := f.expired[req.Query.Get("session")] || req.Query.Get("session") == ""
	handler := f.page
	f.mu.Unlock()

	if expired {
		return &Response{StatusCode: 200, Body: loginPage(false)}, nil
	}
	if handler != nil {
		return handler(req)
	}
	return &Response{StatusCode: 200, Body: summaryPage("Unset")}, nil
}

func (f *fakeTransport) expire(sid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired[sid] = true
}

func (f *fakeTransport) expireAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		f.expired[s] = true
	}
}

func (f *fakeTransport) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeTransport) sendCount(page string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[page]
}

// recorder is a Listener that keeps everything it is told.
type recorder struct {
	mu           sync.Mutex
	snapshots    []Snapshot
	changes      []Change
	availability []bool
	results      []CommandResult
}

func (r *recorder) OnSnapshot(s Snapshot, c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	r.changes = append(r.changes, c)
}

func (r *recorder) OnAvailabilityChanged(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.availability = append(r.availability, v)
}

func (r *recorder) OnCommandResult(res CommandResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snapshots...)
}

func (r *recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func (r *recorder) Availability() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.availability...)
}

func (r *recorder) Results() []CommandResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CommandResult(nil), r.results...)
}

func testConfig() Config {
	return Config{
		Host:     "127.0.0.1",
		Username: "installer",
		Password: "1111",
	}
}
