// Package checkpoint provides the business logic over the snapshot store:
// checkpoint creation, restore planning and execution, diffing against a
// caller-supplied live state, and cross-checkpoint file history.
//
// Restore is all-or-nothing with respect to conflicts: a full pre-pass
// detects every conflicting target before any file is written, and each
// individual write is atomic (temp file + rename).
package checkpoint
