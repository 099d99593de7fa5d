package auditWorker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wb-go/wbf/zlog"

	"iscrizioni/internal/dto"
	"iscrizioni/internal/model"
	"iscrizioni/internal/rabbit"
	"iscrizioni/internal/repo"
	"iscrizioni/pkg/tz"
)

// Reader consumes audit messages and persists them as audit_log rows.
type Reader struct {
	RMQ    *rabbit.Client
	repo   repo.Repository
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, repo repo.Repository) *Reader {
	return &Reader{
		RMQ:  rmq,
		repo: repo,
		done: make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("Audit reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			return r.handle(cctx, body)
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("Audit reader stopped by context")
	}()
}

// handle decodes one audit message and persists it. Malformed payloads
// are reported as rabbit.ErrBadMessage so the consumer drops them;
// store failures stay transient and get the message redelivered.
func (r *Reader) handle(ctx context.Context, body []byte) error {
	var msg dto.AuditMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Msgf("Failed to unmarshal audit message: %s", string(body))
		return fmt.Errorf("%w: %v", rabbit.ErrBadMessage, err)
	}

	entry := &model.AuditEntry{
		Action:         msg.Action,
		EventID:        int(msg.EventID),
		RegistrationID: int(msg.RegistrationID),
		Phone:          msg.Phone,
		CreatedAt:      msg.OccurredAt.In(tz.Rome).Format(repo.TimeLayout),
	}
	if err := r.repo.InsertAuditEntry(ctx, entry); err != nil {
		zlog.Logger.Error().
			Err(err).
			Int64("registration_id", msg.RegistrationID).
			Msg("Failed to persist audit entry")
		return err
	}

	zlog.Logger.Info().
		Str("action", msg.Action).
		Int64("registration_id", msg.RegistrationID).
		Int64("event_id", msg.EventID).
		Msg("Audit entry recorded")
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
