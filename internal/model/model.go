package model

import (
	"time"

	"github.com/google/uuid"

	"weekcal/internal/cluster"
)

// ActivityKind discriminates the activity variants shown in calendar views.
type ActivityKind string

const (
	KindEvent ActivityKind = "event"
	KindTask  ActivityKind = "task"
)

// Organization owns activities; feeds are configured per organization.
type Organization struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// activityNamespace seeds deterministic activity IDs.
var activityNamespace = uuid.MustParse("6f1c3a52-9d4e-4b8a-a0f7-3c2e5d9b1a44")

// Activity is a single concrete calendar entry after recurrence expansion and
// timezone normalization. Start/End are in the display timezone; a zero
// value means the bound is absent.
type Activity struct {
	ID   string       `json:"id"`
	Kind ActivityKind `json:"kind"`

	SourceID string `json:"source_id"` // feed ID from config
	UID      string `json:"uid"`       // iCalendar UID

	// InstanceKey identifies one occurrence of a recurring activity,
	// derived from the local start time.
	InstanceKey string `json:"instance_key"`

	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Location     string       `json:"location"`
	Organization Organization `json:"organization"`

	AllDay    bool `json:"all_day"`
	Cancelled bool `json:"cancelled"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ActivityID derives a stable identifier for one activity instance.
func ActivityID(sourceID, uid, instanceKey string) string {
	return uuid.NewSHA1(activityNamespace, []byte(sourceID+"\x00"+uid+"\x00"+instanceKey)).String()
}

// Scheduled reports whether both bounds are present.
func (a Activity) Scheduled() bool {
	return !a.Start.IsZero() && !a.End.IsZero()
}

// Span implements cluster.TimedItem.
func (a Activity) Span() (cluster.TimeSpan, bool) {
	if !a.Scheduled() {
		return cluster.TimeSpan{}, false
	}
	return cluster.TimeSpan{Start: a.Start, End: a.End}, true
}
