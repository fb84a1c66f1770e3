package domain

import "github.com/google/uuid"

// DocumentLog is the run record a main span was produced by. It carries the
// document, commit and experiment that the span's denormalized columns copy.
type DocumentLog struct {
	UUID         uuid.UUID `json:"uuid"`
	DocumentUUID uuid.UUID `json:"documentUuid"`
	CommitID     int64     `json:"commitId"`
	ExperimentID *int64    `json:"experimentId,omitempty"`
}

// SpanDenormalization is the set of denormalized columns written back to a
// span by the backfill.
type SpanDenormalization struct {
	Key            SpanKey
	ProjectID      int64
	DocumentUUID   uuid.UUID
	CommitUUID     uuid.UUID
	ExperimentUUID *uuid.UUID
}
