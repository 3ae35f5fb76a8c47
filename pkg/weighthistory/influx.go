// Package weighthistory records a time-series point for every target group
// whenever ListenerState successfully persists a shed or restore mutation.
// This is pure observability: write failures are logged and swallowed, never
// turned into a failed invocation.
package weighthistory

import (
	"context"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Point is one target group's weight at the moment one rule's mutation was
// persisted.
type Point struct {
	Timestamp     time.Time
	RuleID        string
	TargetGroupID string
	Weight        int
	EpisodeAction string
}

// Recorder is the sink WeightHistoryPoints are written to.
type Recorder interface {
	RecordWeight(ctx context.Context, p Point) error
}

// InfluxRecorder is the production Recorder, backed by InfluxDB.
type InfluxRecorder struct {
	client influxdb2.Client
	org    string
	bucket string
}

// NewInfluxRecorder builds a Recorder against the given InfluxDB instance.
func NewInfluxRecorder(url, token, org, bucket string) *InfluxRecorder {
	return &InfluxRecorder{
		client: influxdb2.NewClient(url, token),
		org:    org,
		bucket: bucket,
	}
}

// RecordWeight writes one point. Errors are logged here and also returned,
// so that callers who want to swallow them per §7 can do so explicitly at
// the call site.
func (r *InfluxRecorder) RecordWeight(ctx context.Context, p Point) error {
	writeAPI := r.client.WriteAPIBlocking(r.org, r.bucket)

	point := write.NewPoint(
		"target_group_weight",
		map[string]string{
			"rule_id":         p.RuleID,
			"target_group_id": p.TargetGroupID,
			"episode_action":  p.EpisodeAction,
		},
		map[string]interface{}{
			"weight": p.Weight,
		},
		p.Timestamp,
	)

	if err := writeAPI.WritePoint(ctx, point); err != nil {
		log.Printf("warn: weight history write failed: %v", err)
		return err
	}
	return nil
}

// Close releases the underlying HTTP client.
func (r *InfluxRecorder) Close() {
	r.client.Close()
}

// NoopRecorder is used when INFLUXDB_URL is unset: recording is disabled.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) RecordWeight(ctx context.Context, p Point) error { return nil }
