package models

import "time"

// MediaRecord is one user-submitted media post. Created by the ingest stage
// with derived keys unset, updated in place by the derivation stage once both
// variants exist. ThumbnailKey and MediumKey are either both nil or both set.
// FailedAt is set when derivation hit a permanent failure; such records are
// out of circulation and the reconciliation sweep skips them.
type MediaRecord struct {
	ID            string
	OwnerID       string
	Caption       string
	OriginalKey   string
	ThumbnailKey  *string
	MediumKey     *string
	FailedAt      *time.Time
	FailureReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Derived reports whether both variants have been published.
func (r MediaRecord) Derived() bool {
	return r.ThumbnailKey != nil && r.MediumKey != nil
}

// Failed reports whether derivation gave up on this record for good.
func (r MediaRecord) Failed() bool {
	return r.FailedAt != nil
}
