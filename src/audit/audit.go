package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/logging"
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
	"github.com/google/uuid"
)

type Writer interface {
	WriteAudit(ctx context.Context, rec *models.AuditRecord) error
}

// Trail writes admin audit records outside of the operation's transaction.
type Trail struct {
	w   Writer
	now func() time.Time
}

func NewTrail(w Writer) *Trail {
	return &Trail{
		w:   w,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Log records an audit event. A failed write is logged and otherwise ignored, so it
// never fails the operation being audited.
func (t *Trail) Log(ctx context.Context, actorEmail, action, target string, details string, args ...any) {
	_ = t.LogError(ctx, actorEmail, action, target, details, args...)
}

// LogError is Log for callers that want to handle a failed write themselves.
func (t *Trail) LogError(ctx context.Context, actorEmail, action, target string, details string, args ...any) error {
	if t == nil || t.w == nil {
		return nil
	}

	rec := &models.AuditRecord{
		ID:         uuid.New(),
		ActorEmail: actorEmail,
		Action:     action,
		Target:     target,
		Details:    fmt.Sprintf(details, args...),
		CreatedAt:  t.now(),
	}
	err := t.w.WriteAudit(ctx, rec)
	if err != nil {
		logging.ExtractLogger(ctx).Warn().Err(err).
			Str("action", action).
			Str("target", target).
			Msg("failed to write audit record")
	}
	return err
}
