package sms

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DryRun logs the message instead of sending it. It always "succeeds".
type DryRun struct {
	log *zap.Logger
}

func NewDryRun(log *zap.Logger) *DryRun {
	if log == nil {
		log = zap.NewNop()
	}
	return &DryRun{log: log}
}

func (d *DryRun) Send(_ context.Context, to, body, idempotencyKey string) (string, error) {
	id := "dry-" + uuid.NewString()
	d.log.Info("sms dry run",
		zap.String("to", to),
		zap.String("body", body),
		zap.String("message_id", id),
		zap.String("idempotency_key", idempotencyKey),
	)
	return id, nil
}
