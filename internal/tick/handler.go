// Package tick implements TickHandler (C5): the entry point for
// delayed self-scheduled reconciliation messages, the subsequent steps of a
// shed/restore episode.
package tick

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/audit"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/controller"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/listener"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/statusmsg"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/alarmadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/queueadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/weighthistory"
)

// Response is the handler's return value, one per processed record.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Handler holds every external collaborator TickHandler calls.
type Handler struct {
	LB         *lbadapter.Client
	Alarm      *alarmadapter.Client
	Queue      queueadapter.Enqueuer
	WeightHist weighthistory.Recorder
	Audit      audit.Store
}

// Handle processes the queue envelope delivered to TickHandler. An empty
// batch returns immediately with no error, per spec.md §4.5.
func (h *Handler) Handle(ctx context.Context, envelope statusmsg.QueueEnvelope) ([]Response, error) {
	if len(envelope.Records) == 0 {
		return nil, nil
	}

	responses := make([]Response, 0, len(envelope.Records))
	for _, rec := range envelope.Records {
		resp, err := h.handleOne(ctx, rec.Body)
		if err != nil {
			return responses, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

func (h *Handler) handleOne(ctx context.Context, body string) (Response, error) {
	msg, err := statusmsg.Decode(body)
	if err != nil {
		return Response{}, fmt.Errorf("malformed status message: %w", err)
	}

	alarmStateStr, err := h.Alarm.State(ctx, msg.AlarmName)
	var alarmState statusmsg.AlarmState
	notFound := errors.Is(err, alarmadapter.ErrAlarmNotFound)
	switch {
	case notFound:
		alarmState = ""
	case err != nil:
		return Response{}, fmt.Errorf("query alarm state: %w", err)
	default:
		alarmState = statusmsg.AlarmState(alarmStateStr)
	}

	state := listener.Load(ctx, h.LB, msg.ElbListenerArn)

	knobs := controller.Knobs{
		ShedStepPct:    msg.ElbShedPercent,
		MaxShedPct:     msg.MaxElbShedPercent,
		RestoreStepPct: msg.ElbRestorePercent,
	}

	var action statusmsg.Action
	var ctrlErr error
	if notFound {
		action = statusmsg.ActionNone
	} else {
		action, ctrlErr = controller.Tick(ctx, state, msg.TargetGroupArn, alarmState, msg.AlbAlarmAction, knobs)
	}

	auditRec := audit.Record{
		InvocationID:         uuid.New(),
		OccurredAt:           time.Now(),
		Source:               "tick",
		AlarmName:            msg.AlarmName,
		AlarmState:           alarmState,
		PriorAction:          msg.AlbAlarmAction,
		NewAction:            action,
		ListenerID:           msg.ElbListenerArn,
		PrimaryTargetGroupID: msg.TargetGroupArn,
		Err:                  ctrlErr,
	}
	if auditErr := h.Audit.Append(ctx, auditRec); auditErr != nil {
		return Response{}, fmt.Errorf("append audit record: %w", auditErr)
	}

	if ctrlErr != nil {
		return Response{}, fmt.Errorf("tick decision: %w", ctrlErr)
	}

	mutated := (alarmState == statusmsg.AlarmALARM && msg.AlbAlarmAction == statusmsg.ActionShed) ||
		(alarmState == statusmsg.AlarmOK && msg.AlbAlarmAction == statusmsg.ActionRestore && action == statusmsg.ActionRestore)
	if err := h.recordWeights(ctx, state, action, mutated); err != nil {
		log.Printf("warn: weight history recording failed: %v", err)
	}

	if action == statusmsg.ActionNone {
		return Response{StatusCode: 200, Message: "New Alarm State:" + string(action)}, nil
	}

	next := msg
	next.AlbAlarmAction = action

	delay := time.Duration(msg.ShedMesgDelaySec) * time.Second
	if action == statusmsg.ActionRestore {
		delay = time.Duration(msg.RestoreMesgDelaySec) * time.Second
	}

	encoded, err := statusmsg.Encode(next)
	if err != nil {
		return Response{}, fmt.Errorf("encode status message: %w", err)
	}

	if err := h.Queue.Enqueue(ctx, msg.SqsQueueURL, delay, encoded); err != nil {
		return Response{}, fmt.Errorf("enqueue status message: %w", err)
	}

	return Response{StatusCode: 200, Message: "New Alarm State:" + string(action)}, nil
}

func (h *Handler) recordWeights(ctx context.Context, state *listener.State, action statusmsg.Action, mutated bool) error {
	if !mutated {
		return nil
	}
	now := time.Now()
	for _, r := range state.Rules() {
		for _, tw := range r.Snapshot() {
			err := h.WeightHist.RecordWeight(ctx, weighthistory.Point{
				Timestamp:     now,
				RuleID:        r.RuleID,
				TargetGroupID: tw.TargetGroupID,
				Weight:        tw.Weight,
				EpisodeAction: string(action),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
