package models

import (
	"time"
)

type LedgerAction string

const (
	LedgerGradeApplied    LedgerAction = "GradeApplied"
	LedgerManualAdjust    LedgerAction = "ManualAdjust"
	LedgerPostApproved    LedgerAction = "PostApproved"
	LedgerPostRejected    LedgerAction = "PostRejected"
	LedgerSuspend         LedgerAction = "Suspend"
	LedgerRegradeReversal LedgerAction = "RegradeReversal"
	LedgerRegradeApplied  LedgerAction = "RegradeApplied"
	LedgerAdminPromotion  LedgerAction = "AdminPromotion"
)

// LedgerEntry is one recorded score change. Entries are only ever inserted.
type LedgerEntry struct {
	ID            int64        `db:"id"`
	SubjectEmail  string       `db:"subject_email"`
	RelatedPostID *int         `db:"related_post_id"`
	ActionType    LedgerAction `db:"action_type"`

	// Delta is NewScore - PreviousScore. RequestedDelta is what the caller asked for
	// before clamping.
	Delta          int     `db:"delta"`
	RequestedDelta float64 `db:"requested_delta"`
	PreviousScore  int     `db:"previous_score"`
	NewScore       int     `db:"new_score"`

	ActingAdminEmail string    `db:"acting_admin_email"`
	Reason           *string   `db:"reason"`
	CreatedAt        time.Time `db:"created_at"`
}
