package model

import "time"

type Outcome string

const (
	OutcomeCopied  Outcome = "COPIED"
	OutcomeSkipped Outcome = "SKIPPED"
	OutcomeFailed  Outcome = "FAILED"
)

type Verification string

const (
	VerifyNotAttempted Verification = "NOT_ATTEMPTED"
	VerifyPassed       Verification = "PASSED"
	VerifyFailed       Verification = "FAILED"
)

// Reason annotates why a record ended the way it did.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonFiltered       Reason = "FILTERED"
	ReasonCollision      Reason = "COLLISION"
	ReasonUnresolvable   Reason = "UNRESOLVABLE_COLLISION"
	ReasonIO             Reason = "IO_ERROR"
	ReasonVerifyMismatch Reason = "VERIFY_MISMATCH"
)

// CopyRecord is the immutable terminal result of one CopyJob. It is passed
// by value and never modified after the engine emits it.
type CopyRecord struct {
	ID           string        `json:"id"`
	JobID        string        `json:"job_id"`
	SourcePath   string        `json:"source_path"`
	DestPath     string        `json:"dest_path"`
	Timestamp    time.Time     `json:"timestamp"`
	Outcome      Outcome       `json:"outcome"`
	Verification Verification  `json:"verification"`
	Attempts     int           `json:"attempts"`
	Size         int64         `json:"size"`
	Duration     time.Duration `json:"duration"`
	Reason       Reason        `json:"reason,omitempty"`
	Error        string        `json:"error,omitempty"`
	Episode      uint64        `json:"-"`
	Snapshot     Fingerprint   `json:"-"`
}

func (r CopyRecord) Verified() bool {
	return r.Verification == VerifyPassed
}
