package models

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

type LeadStatus string

const (
	StatusNew      LeadStatus = "new"
	StatusInWork   LeadStatus = "in_work"
	StatusRejected LeadStatus = "rejected"
	StatusDone     LeadStatus = "done"
)

// AllowedStatuses is the full status enumeration in display order.
var AllowedStatuses = []LeadStatus{StatusNew, StatusInWork, StatusRejected, StatusDone}

func (s LeadStatus) Valid() bool {
	for _, allowed := range AllowedStatuses {
		if s == allowed {
			return true
		}
	}
	return false
}

// CreatedLayout is how Lead.Created is written to the store.
const CreatedLayout = "2006-01-02 15:04:05"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidEmail reports whether s has the local-part@domain.tld shape.
// RE2's \s is ASCII only, so Unicode spaces (NBSP, em space, \v) are
// rejected separately.
func IsValidEmail(s string) bool {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	return emailPattern.MatchString(s)
}

type Lead struct {
	ID       int64
	FIO      string
	Email    string
	Gender   string
	Status   LeadStatus
	Created  time.Time
	UserID   int64
	Username string
	Topic    string
	Details  string
}

// NewLead is the only input accepted for lead creation. ID, Status and
// Created are assigned by the store.
type NewLead struct {
	FIO      string
	Email    string
	Gender   string
	UserID   int64
	Username string
	Topic    string
	Details  string
}

type EventType string

const (
	EventTypeEvent    EventType = "event"
	EventTypeFeedback EventType = "feedback"
	EventTypeLead     EventType = "lead"
)

type Event struct {
	ID      string            `json:"id"`
	Type    EventType         `json:"type"`
	Stage   string            `json:"stage,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	UserID  int64             `json:"uid"`
	TS      int64             `json:"ts"`
}
