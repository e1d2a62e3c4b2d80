package spc

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const (
	pathLogin  = "/login.htm"
	pathSecure = "/secure.htm"

	pageSummary = "system_summary"
	pageZones   = "status_zones"

	// the web UI always asks for english.
	language = "0"
)

func makeLoginRequest(user, pass string) Request {
	return Request{
		Method: http.MethodPost,
		Path:   pathLogin,
		Query: url.Values{
			"action":   {"login"},
			"language": {language},
		},
		Form: url.Values{
			"userid":   {user},
			"password": {pass},
		},
	}
}

func makePageRequest(page string) Request {
	return Request{
		Method: http.MethodGet,
		Path:   pathSecure,
		Query: url.Values{
			"page":     {page},
			"language": {language},
		},
	}
}

func makeUpdateRequest(page string, form url.Values) Request {
	req := makePageRequest(page)
	req.Method = http.MethodPost
	req.Query.Set("action", "update")
	req.Form = form
	return req
}

func makeArmRequest(desired AreaStatus) Request {
	form := url.Values{"unset_all_areas": {"Unset"}}
	if desired == AreaArmed {
		form = url.Values{"fullset_area1": {"Fullset"}}
	}
	return makeUpdateRequest(pageSummary, form)
}

func makeInhibitRequest(zone int, inhibit bool) Request {
	id := strconv.Itoa(zone)
	form := url.Values{"uninhibit" + id: {"Deinhibit"}}
	if inhibit {
		form = url.Values{"inhibit" + id: {"Inhibit"}}
	}
	req := makeUpdateRequest(pageZones, form)
	// the web UI always sends it, whatever the zone.
	req.Query.Set("zone", "1")
	return req
}

// withSession returns a copy of req carrying the session token.
func withSession(req Request, s *Session) Request {
	q := url.Values{}
	for k, v := range req.Query {
		q[k] = v
	}
	q.Set("session", s.ID)
	req.Query = q
	return req
}

func describe(req Request) string {
	if page := req.Query.Get("page"); page != "" {
		return fmt.Sprintf("%s %s", req.Method, page)
	}
	return fmt.Sprintf("%s %s", req.Method, req.Path)
}
