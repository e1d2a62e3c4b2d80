package spc

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// RawState is what the panel answered to the state queries.
type RawState struct {
	Summary []byte // system_summary page
	Zones   []byte // status_zones page
}

var (
	reSerial  = regexp.MustCompile(`S/N:\s*([0-9A-Za-z]+)`)
	reSession = regexp.MustCompile(`(?:\?|&(?:amp;)?)session=(0x[0-9A-Fa-f]+)`)
	reLogin   = regexp.MustCompile(`(?i)\baction=login\b`)
	reDenied  = regexp.MustCompile(`(?i)\baccess\s+denied\b`)
)

const (
	allAreasLabel = "All Areas"
	zoneRowHeight = "20"
)

// Parse turns the panel pages into a snapshot.
//
// Zones missing some field are left out, with a warning. A missing or
// unknown area state fails the whole parse.
func Parse(raw RawState) (Snapshot, error) {
	area, err := parseArea(raw.Summary)
	if err != nil {
		return Snapshot{}, err
	}
	zones, warnings := parseZones(raw.Zones)
	model, site := parseTitle(raw.Summary)
	return Snapshot{
		Area:     area,
		Zones:    zones,
		Info:     PanelInfo{Model: model, Site: site},
		Warnings: warnings,
	}, nil
}

func parseArea(b []byte) (AreaState, error) {
	_, cells := scanTables(b)
	for i, cell := range cells {
		if !strings.EqualFold(cell, allAreasLabel) {
			continue
		}
		if i+1 >= len(cells) || cells[i+1] == "" {
			break
		}
		raw := strings.ToLower(cells[i+1])
		area := AreaState{
			ID:   AllAreas,
			Name: allAreasLabel,
			Raw:  raw,
		}
		switch raw {
		case "unset":
			area.Status = AreaDisarmed
		case "fullset":
			area.Status = AreaArmed
		default:
			return AreaState{}, fmt.Errorf("%w: unrecognized arm state %q", ErrParse, raw)
		}
		return area, nil
	}
	return AreaState{}, fmt.Errorf("%w: arm state not found", ErrParse)
}

func parseZones(b []byte) ([]ZoneState, []string) {
	rows, _ := scanTables(b)
	var zones []ZoneState
	var warnings []string
	for i, r := range rows {
		if r.header || r.attrs["height"] != zoneRowHeight || len(r.cells) == 0 {
			continue
		}
		zone, err := parseZoneRow(r)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		zones = append(zones, zone)
	}
	return zones, warnings
}

func parseZoneRow(r row) (ZoneState, error) {
	cell := func(i int) string {
		if i < len(r.cells) {
			return r.cells[i]
		}
		return ""
	}

	id, name, ok := splitIDName(cell(0))
	if !ok {
		return ZoneState{}, fmt.Errorf("missing zone id in %q", cell(0))
	}
	areaID, areaName, ok := splitIDName(cell(1))
	if !ok {
		return ZoneState{}, fmt.Errorf("zone %d: missing area", id)
	}
	kind := strings.ToLower(cell(2))
	if kind == "" {
		return ZoneState{}, fmt.Errorf("zone %d: missing type", id)
	}
	raw := strings.ToLower(cell(3))
	if raw == "" {
		return ZoneState{}, fmt.Errorf("zone %d: missing status", id)
	}
	if name == "" {
		name = fmt.Sprintf("Zone %d", id)
	}

	status, inhibited := zoneStatus(raw)
	detector := zoneDetector(kind)
	zone := ZoneState{
		ID:        id,
		Name:      name,
		AreaID:    areaID,
		AreaName:  areaName,
		Type:      kind,
		Kind:      KindStatus,
		Detector:  detector,
		Status:    status,
		Inhibited: inhibited,
		Raw:       raw,
	}
	if detector != DetectorNone {
		zone.Kind = KindBinary
	}
	// inhibited zones only show their input in a comment.
	for _, note := range r.notes {
		if note != "" {
			zone.Input = strings.ToLower(note)
			break
		}
	}
	return zone, nil
}

func zoneStatus(raw string) (ZoneStatus, bool) {
	switch raw {
	case "normal", "ok":
		return ZoneNormal, false
	case "actuated", "alarm":
		return ZoneActive, false
	case "tamper":
		return ZoneTamper, false
	case "inhibit", "inhibited", "isolate", "isolated":
		return ZoneUnknown, true
	default:
		return ZoneUnknown, false
	}
}

func zoneDetector(kind string) Detector {
	switch kind {
	case "alarm":
		return DetectorMotion
	case "entry/exit", "entry/exit 2":
		return DetectorContact
	case "fire":
		return DetectorSmoke
	case "technical":
		return DetectorFault
	default:
		return DetectorNone
	}
}

// splitIDName splits cells like "12 Front Door".
func splitIDName(s string) (int, string, bool) {
	head, tail, _ := strings.Cut(s, " ")
	id, err := strconv.Atoi(head)
	if err != nil || id < 0 {
		return 0, "", false
	}
	return id, strings.TrimSpace(tail), true
}

// parseTitle returns the model and site from "<title>Model - Site</title>".
func parseTitle(b []byte) (string, string) {
	z := html.NewTokenizer(bytes.NewReader(b))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", ""
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) != "title" {
				continue
			}
			if z.Next() != html.TextToken {
				return "", ""
			}
			model, site, _ := strings.Cut(string(z.Text()), " - ")
			return strings.TrimSpace(model), strings.TrimSpace(site)
		}
	}
}

func parseSerial(b []byte) string {
	if m := reSerial.FindSubmatch(b); m != nil {
		return string(m[1])
	}
	return ""
}

func parseSessionID(b []byte) (string, error) {
	if m := reSession.FindSubmatch(b); m != nil {
		return string(m[1]), nil
	}
	return "", fmt.Errorf("%w: session id not found", ErrParse)
}

func isLoginPage(b []byte) bool {
	return reLogin.Match(b)
}

func isAccessDenied(b []byte) bool {
	return reDenied.Match(b)
}

// parseImportantMessage returns the message the panel shows when it refuses
// a command, e.g. when zones are open: bold text right inside a red font.
func parseImportantMessage(b []byte) string {
	z := html.NewTokenizer(bytes.NewReader(b))
	var red, inside bool
	var msg strings.Builder
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if inside {
				return normalizeSpace(msg.String())
			}
			return ""
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			switch {
			case string(name) == "font":
				red = strings.EqualFold(tagAttrs(z, hasAttr)["color"], "red")
			case string(name) == "b" && red:
				inside = true
			default:
				red = false
			}
		case html.EndTagToken:
			if inside {
				if text := normalizeSpace(msg.String()); text != "" {
					return text
				}
			}
			red, inside = false, false
			msg.Reset()
		case html.TextToken:
			switch {
			case inside:
				msg.Write(z.Text())
			case strings.TrimSpace(string(z.Text())) != "":
				red = false
			}
		default:
			red = false
		}
	}
}

type row struct {
	attrs  map[string]string
	cells  []string
	notes  []string
	header bool
}

// scanTables walks all table rows and cells in b. It does not care much
// about the markup being well formed: a new row or cell closes the previous
// one.
func scanTables(b []byte) ([]row, []string) {
	var rows []row
	var cells []string
	var cur *row
	var cell *strings.Builder

	closeCell := func() {
		if cell == nil {
			return
		}
		txt := normalizeSpace(cell.String())
		cells = append(cells, txt)
		if cur != nil {
			cur.cells = append(cur.cells, txt)
		}
		cell = nil
	}
	closeRow := func() {
		closeCell()
		if cur != nil {
			rows = append(rows, *cur)
			cur = nil
		}
	}

	z := html.NewTokenizer(bytes.NewReader(b))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			closeRow()
			return rows, cells
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "tr":
				closeRow()
				cur = &row{attrs: tagAttrs(z, hasAttr)}
			case "td", "th":
				closeCell()
				if string(name) == "th" && cur != nil {
					cur.header = true
				}
				cell = &strings.Builder{}
			case "br":
				if cell != nil {
					cell.WriteByte(' ')
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "td", "th":
				closeCell()
			case "tr", "table":
				closeRow()
			}
		case html.TextToken:
			if cell != nil {
				cell.Write(z.Text())
			}
		case html.CommentToken:
			if cur != nil {
				cur.notes = append(cur.notes, commentText(z.Text()))
			}
		}
	}
}

// commentText returns the font text of markup that was commented out.
func commentText(b []byte) string {
	z := html.NewTokenizer(bytes.NewReader(b))
	var font bool
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return normalizeSpace(sb.String())
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "font" {
				font = true
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "font" {
				font = false
				sb.WriteByte(' ')
			}
		case html.TextToken:
			if font {
				sb.Write(z.Text())
			}
		}
	}
}

func tagAttrs(z *html.Tokenizer, hasAttr bool) map[string]string {
	attrs := map[string]string{}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		attrs[string(key)] = string(val)
	}
	return attrs
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
