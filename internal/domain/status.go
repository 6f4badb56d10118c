package domain

import (
	"errors"
	"strings"
)

// Status is the lifecycle state of a NACH transaction.
type Status string

const (
	StatusSuccess     Status = "SUCCESS"
	StatusError       Status = "ERROR"
	StatusStuck       Status = "STUCK"
	StatusFailed      Status = "FAILED"
	StatusReprocessed Status = "REPROCESSED"
	// StatusParseError marks a line that could not be decoded. It is never persisted.
	StatusParseError Status = "PARSE_ERROR"
)

// AllStatuses lists every defined status in display order.
var AllStatuses = []Status{
	StatusSuccess,
	StatusError,
	StatusStuck,
	StatusFailed,
	StatusReprocessed,
	StatusParseError,
}

var ErrInvalidTransition = errors.New("invalid status transition")

// ReprocessableStatuses are the statuses the reprocessor may pick up.
var ReprocessableStatuses = []Status{StatusError, StatusStuck, StatusFailed}

func (s Status) IsValid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsReprocessable reports whether s is ERROR, STUCK or FAILED.
func (s Status) IsReprocessable() bool {
	return s == StatusError || s == StatusStuck || s == StatusFailed
}

// IsTerminal reports whether no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusReprocessed
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus normalises an inbound status string.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.IsValid()
}

// CanTransition reports whether the core may move a record from one status to another.
// Initial assignment happens at parse time and is not a transition; STUCK and FAILED
// are set by operational processes outside this service.
func CanTransition(from, to Status) bool {
	return to == StatusReprocessed && from.IsReprocessable()
}

// FileType is the clearing direction of a NACH file.
type FileType string

const (
	FileTypeDebit  FileType = "DR"
	FileTypeCredit FileType = "CR"
)

func (f FileType) IsValid() bool {
	return f == FileTypeDebit || f == FileTypeCredit
}
