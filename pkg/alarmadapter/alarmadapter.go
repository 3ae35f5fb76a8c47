// Package alarmadapter is the thin seam over the CloudWatch alarm query API:
// look up an alarm's current state by name. Wraps
// github.com/aws/aws-sdk-go-v2's cloudwatch client.
package alarmadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"github.com/aws-samples/alb-target-group-load-shedding/pkg/circuit"
)

// CloudWatchAPI is the subset of the cloudwatch client this system calls.
type CloudWatchAPI interface {
	DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
}

// Client wraps a CloudWatchAPI client, with a per-alarm circuit breaker so a
// run of CloudWatch throttling during a tick storm fails fast.
type Client struct {
	api     CloudWatchAPI
	breaker *circuit.BreakerGroup
}

// New wraps an existing CloudWatch SDK client.
func New(api CloudWatchAPI) *Client {
	return &Client{
		api: api,
		breaker: circuit.NewBreakerGroup(circuit.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			HalfOpenMax: 1,
		}),
	}
}

// ErrAlarmNotFound is returned when DescribeAlarms reports zero alarms for
// the requested name.
var ErrAlarmNotFound = fmt.Errorf("alarm not found")

// State returns the current state of the named alarm, as its raw CloudWatch
// string ("OK", "ALARM", "INSUFFICIENT_DATA").
func (c *Client) State(ctx context.Context, alarmName string) (string, error) {
	var out *cloudwatch.DescribeAlarmsOutput
	err := c.breaker.Execute(ctx, alarmName, func() error {
		var apiErr error
		out, apiErr = c.api.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{
			AlarmNames: []string{alarmName},
		})
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("describe alarm %s: %w", alarmName, err)
	}

	if len(out.MetricAlarms) == 0 {
		return "", ErrAlarmNotFound
	}

	return string(out.MetricAlarms[0].StateValue), nil
}
