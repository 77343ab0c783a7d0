package session

import (
	"time"
)

// CallStatus is the lifecycle state of one tracked call.
type CallStatus string

const (
	// CallPending means the wrapped operation is still executing.
	CallPending CallStatus = "pending"
	// CallDone means the wrapped operation completed normally.
	CallDone CallStatus = "done"
	// CallFailed means the wrapped operation reported an error. The call's
	// checkpoint remains a valid rollback target.
	CallFailed CallStatus = "failed"
)

// CallRecord is one externally-triggered operation tracked by a session,
// linked to the checkpoint taken immediately before it. Records are
// append-only: restores never delete or rewrite them.
type CallRecord struct {
	// ID is the zero-padded sequence id, e.g. "call-0001". Ids are
	// monotonic per session and never reused, even across restores.
	ID string `json:"id"`

	// Label names the model or operation that ran during the call.
	Label string `json:"label"`

	// Description is free text supplied by the caller.
	Description string `json:"description"`

	// CreatedAt is when the call was opened.
	CreatedAt time.Time `json:"created_at"`

	// CheckpointID is the checkpoint captured immediately before the call.
	CheckpointID string `json:"checkpoint_id"`

	// TrackedFiles are the paths the caller reported as touched.
	TrackedFiles []string `json:"tracked_files"`

	// Status is pending, done, or failed.
	Status CallStatus `json:"status"`
}

// clone returns a copy safe to hand to callers.
func (r *CallRecord) clone() CallRecord {
	out := *r
	out.TrackedFiles = append([]string(nil), r.TrackedFiles...)
	return out
}
