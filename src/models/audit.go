package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditRecord struct {
	ID         uuid.UUID `db:"id"`
	ActorEmail string    `db:"actor_email"`
	Action     string    `db:"action"`
	Target     string    `db:"target"`
	Details    string    `db:"details"`
	CreatedAt  time.Time `db:"created_at"`
}
