package ledger

import (
	"time"
)

// Action is the protocol step a row describes.
type Action string

const (
	ActionPrePull  Action = "sourcing pre-pull"
	ActionPostPull Action = "sourcing post-pull"
	ActionPrePush  Action = "sinking pre-push"
	ActionPostPush Action = "sinking post-push"
)

// Status is the outcome of a step.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
)

// StateRecord is one persisted ledger row.
type StateRecord struct {
	StateID          string
	JobID            string
	RunID            string
	ManifestName     string
	CorrelationIDIn  string
	CorrelationIDOut string
	Action           Action
	Status           Status

	SourceEntity string
	SourceFilter string
	SinkEntity   string
	SinkFilter   string

	RecordCount       *int
	FirstRecordPulled string
	LastRecordPulled  string

	SourcingStartTime *time.Time
	SourcingEndTime   *time.Time
	SinkingStartTime  *time.Time
	SinkingEndTime    *time.Time

	SourceName string
	SourceType string
	SinkName   string
	SinkType   string
	GitSHA     string
	UpdatedOn  time.Time
}

// Entry is the caller-controlled part of a row.
type Entry struct {
	Action Action
	Status Status

	SourceEntity string
	// SourceFilter and SinkFilter are stored verbatim when they are strings
	// and as JSON otherwise.
	SourceFilter interface{}
	SinkEntity   string
	SinkFilter   interface{}

	CorrelationIDIn  string
	CorrelationIDOut string

	RecordCount       *int
	FirstRecordPulled string
	LastRecordPulled  string

	SourcingStartTime *time.Time
	SourcingEndTime   *time.Time
	SinkingStartTime  *time.Time
	SinkingEndTime    *time.Time
}

// Entry returns the row as an Entry, so a later step can carry its fields
// forward and change only what it owns.
func (r *StateRecord) Entry() Entry {
	return Entry{
		Action:            r.Action,
		Status:            r.Status,
		SourceEntity:      r.SourceEntity,
		SourceFilter:      r.SourceFilter,
		SinkEntity:        r.SinkEntity,
		SinkFilter:        r.SinkFilter,
		CorrelationIDIn:   r.CorrelationIDIn,
		CorrelationIDOut:  r.CorrelationIDOut,
		RecordCount:       r.RecordCount,
		FirstRecordPulled: r.FirstRecordPulled,
		LastRecordPulled:  r.LastRecordPulled,
		SourcingStartTime: r.SourcingStartTime,
		SourcingEndTime:   r.SourcingEndTime,
		SinkingStartTime:  r.SinkingStartTime,
		SinkingEndTime:    r.SinkingEndTime,
	}
}

// Count returns a pointer to n, for RecordCount.
func Count(n int) *int {
	return &n
}

// Time returns a pointer to t, for the step timestamps.
func Time(t time.Time) *time.Time {
	return &t
}
