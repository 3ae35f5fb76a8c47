// Package audit is the durable record of every decision the controller made.
// Unlike pkg/weighthistory, a write failure here is fatal for the
// invocation: this log is the only durable account of what the controller
// believed happened, per SPEC_FULL.md §4.10.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/statusmsg"
)

// Record is one row appended per invocation.
type Record struct {
	InvocationID        uuid.UUID
	OccurredAt          time.Time
	Source              string // "alarm_event" or "tick"
	AlarmName           string
	AlarmState          statusmsg.AlarmState
	PriorAction         statusmsg.Action
	NewAction           statusmsg.Action
	ListenerID          string
	PrimaryTargetGroupID string
	Err                 error
}

// Store is the sink audit Records are appended to.
type Store interface {
	Append(ctx context.Context, rec Record) error
}

// PostgresStore is the production Store, backed by Postgres via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB (driverName "postgres").
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts one audit row.
func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	var errText sql.NullString
	if rec.Err != nil {
		errText = sql.NullString{String: rec.Err.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decision_audit
			(invocation_id, occurred_at, source, alarm_name, alarm_state, prior_action,
			 new_action, listener_id, primary_target_group_id, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.InvocationID, rec.OccurredAt, rec.Source, rec.AlarmName, rec.AlarmState,
		rec.PriorAction, rec.NewAction, rec.ListenerID, rec.PrimaryTargetGroupID, errText,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// InMemoryStore is used by the admin API and integration tests: Append
// accumulates rows and notifies a live subscriber channel, if any, so the
// admin API's WebSocket stream can broadcast as records arrive.
type InMemoryStore struct {
	records []Record
	notify  chan Record
}

// NewInMemoryStore builds a store with a broadcast channel of the given
// buffer size. A size-0 channel is valid; subscribers that fall behind will
// miss records rather than block Append.
func NewInMemoryStore(notifyBuffer int) *InMemoryStore {
	return &InMemoryStore{notify: make(chan Record, notifyBuffer)}
}

// Append records rec and attempts a non-blocking notify.
func (s *InMemoryStore) Append(ctx context.Context, rec Record) error {
	s.records = append(s.records, rec)
	select {
	case s.notify <- rec:
	default:
	}
	return nil
}

// Records returns every record appended so far, in order.
func (s *InMemoryStore) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Subscribe returns the channel new records are pushed to.
func (s *InMemoryStore) Subscribe() <-chan Record {
	return s.notify
}
