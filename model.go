package spc

import (
	"time"
)

// AllAreas is the id of the aggregate area the web UI shows as "All Areas".
const AllAreas = 0

type AreaStatus uint8

const (
	AreaDisarmed AreaStatus = iota
	AreaArmed
)

func (s AreaStatus) String() string {
	switch s {
	case AreaArmed:
		return "Armed"
	default:
		return "Disarmed"
	}
}

type ZoneStatus uint8

const (
	ZoneUnknown ZoneStatus = iota
	ZoneNormal
	ZoneActive
	ZoneTamper
)

func (s ZoneStatus) String() string {
	switch s {
	case ZoneNormal:
		return "normal"
	case ZoneActive:
		return "active"
	case ZoneTamper:
		return "tamper"
	default:
		return "unknown"
	}
}

// ZoneKind tells whether a zone is a plain detector (on/off) or only carries
// a status value.
type ZoneKind uint8

const (
	KindStatus ZoneKind = iota
	KindBinary
)

func (k ZoneKind) String() string {
	if k == KindBinary {
		return "binary"
	}
	return "status"
}

type Detector uint8

const (
	DetectorNone Detector = iota
	DetectorMotion
	DetectorContact
	DetectorSmoke
	DetectorFault
)

func (d Detector) String() string {
	switch d {
	case DetectorMotion:
		return "motion"
	case DetectorContact:
		return "contact"
	case DetectorSmoke:
		return "smoke"
	case DetectorFault:
		return "fault"
	default:
		return "none"
	}
}

type AreaState struct {
	ID     int
	Name   string
	Status AreaStatus
	Raw    string
}

type ZoneState struct {
	ID        int
	Name      string
	AreaID    int
	AreaName  string
	Type      string
	Kind      ZoneKind
	Detector  Detector
	Status    ZoneStatus
	Input     string
	Inhibited bool
	Raw       string
}

// Active reports whether a binary detector should show as triggered.
func (z ZoneState) Active() bool {
	return z.Status == ZoneActive
}

func (z ZoneState) sameValue(o ZoneState) bool {
	return z.Status == o.Status &&
		z.Input == o.Input &&
		z.Inhibited == o.Inhibited
}

// PanelInfo is what the web UI tells about the panel itself.
type PanelInfo struct {
	Model  string
	Site   string
	Serial string
}

// Snapshot is the state of the panel at a given time.
// It must not be modified once published.
type Snapshot struct {
	Area     AreaState
	Zones    []ZoneState
	Info     PanelInfo
	Time     time.Time
	Warnings []string
}

// Zone returns the zone with the given id.
func (s Snapshot) Zone(id int) (ZoneState, bool) {
	for _, z := range s.Zones {
		if z.ID == id {
			return z, true
		}
	}
	return ZoneState{}, false
}

// Change describes what differs between two snapshots.
type Change struct {
	First       bool
	AreaChanged bool
	Zones       []int
}

func (c Change) Empty() bool {
	return !c.First && !c.AreaChanged && len(c.Zones) == 0
}

// Diff compares the area status and every zone value of prev and next.
// A nil prev means next is the first snapshot, and everything changed.
func Diff(prev *Snapshot, next Snapshot) Change {
	if prev == nil {
		ids := make([]int, 0, len(next.Zones))
		for _, z := range next.Zones {
			ids = append(ids, z.ID)
		}
		return Change{First: true, AreaChanged: true, Zones: ids}
	}

	change := Change{
		AreaChanged: prev.Area.Status != next.Area.Status,
	}
	seen := make(map[int]struct{}, len(next.Zones))
	for _, z := range next.Zones {
		seen[z.ID] = struct{}{}
		old, ok := prev.Zone(z.ID)
		if !ok || !old.sameValue(z) {
			change.Zones = append(change.Zones, z.ID)
		}
	}
	// zones that went away also count
	for _, z := range prev.Zones {
		if _, ok := seen[z.ID]; !ok {
			change.Zones = append(change.Zones, z.ID)
		}
	}
	return change
}
