// Package event defines the formatted kernel log record that kmsgd stores.
package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Facility is a syslog facility code.
type Facility int

const (
	FacKern   Facility = 0
	FacUser   Facility = 1
	FacDaemon Facility = 3
	FacAuth   Facility = 4
	FacSyslog Facility = 5
)

var facilityNames = map[Facility]string{
	FacKern:   "kern",
	FacUser:   "user",
	2:         "mail",
	FacDaemon: "daemon",
	FacAuth:   "auth",
	FacSyslog: "syslog",
	6:         "lpr",
	7:         "news",
	8:         "uucp",
	9:         "cron",
	10:        "authpriv",
	11:        "ftp",
	16:        "local0",
	17:        "local1",
	18:        "local2",
	19:        "local3",
	20:        "local4",
	21:        "local5",
	22:        "local6",
	23:        "local7",
}

// Label returns the syslog name of the facility.
func (f Facility) Label() string {
	if name, ok := facilityNames[f]; ok {
		return name
	}
	return "unknown"
}

// Severity is a syslog severity; lower is more urgent.
type Severity int

const (
	SevEmerg Severity = iota
	SevAlert
	SevCrit
	SevErr
	SevWarning
	SevNotice
	SevInfo
	SevDebug
)

var severityNames = [...]string{"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug"}

// Label returns the syslog name of the severity.
func (s Severity) Label() string {
	if s < SevEmerg || s > SevDebug {
		return "unknown"
	}
	return severityNames[s]
}

// ParseSeverity accepts a syslog severity name or its alias ("error", "warn").
func ParseSeverity(name string) (Severity, bool) {
	switch strings.ToLower(name) {
	case "error":
		return SevErr, true
	case "warn":
		return SevWarning, true
	case "emergency", "panic":
		return SevEmerg, true
	case "critical":
		return SevCrit, true
	}
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), true
		}
	}
	return 0, false
}

// Event is one kernel log record after formatting.
type Event struct {
	ID         string
	InstanceID string
	Timestamp  time.Time
	Facility   Facility
	Severity   Severity
	Seq        uint64
	Subsystem  string
	Message    string
	Truncated  bool
	// Startup marks records drained from the backlog present at start.
	Startup bool
}

// New creates a new Event with a generated UUID.
func New(instanceID string, ts time.Time, fac Facility, sev Severity, msg string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Timestamp:  ts,
		Facility:   fac,
		Severity:   sev,
		Message:    msg,
	}
}

// Priority returns the combined syslog priority value.
func (e *Event) Priority() int {
	return int(e.Facility)<<3 | int(e.Severity)
}
