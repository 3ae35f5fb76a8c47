// Package config loads and validates AlarmEventHandler's cold-start
// configuration from the environment, per spec.md §6. TickHandler never
// reads this package: all of its knobs travel inside the delivered
// StatusMessage.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Config is the set of environment-sourced knobs read once at Lambda
// cold-start.
type Config struct {
	ElbArn              string
	ElbListenerArn      string
	SqsQueueURL         string
	ElbShedPercent      int
	MaxElbShedPercent   int
	ElbRestorePercent   int
	ShedMesgDelaySec    int
	RestoreMesgDelaySec int

	IdempotencyRedisAddr string
	InfluxURL            string
	InfluxToken          string
	InfluxOrg            string
	InfluxBucket         string
	AuditDatabaseURL     string
}

// Load reads and validates the environment. Missing required fields are a
// fatal error; out-of-range integer knobs are clamped and logged at warn
// level rather than rejected, per SPEC_FULL.md §4.7.
func Load() (*Config, error) {
	cfg := &Config{
		ElbArn:         os.Getenv("ELB_ARN"),
		ElbListenerArn: os.Getenv("ELB_LISTENER_ARN"),
		SqsQueueURL:    os.Getenv("SQS_QUEUE_URL"),

		IdempotencyRedisAddr: os.Getenv("IDEMPOTENCY_REDIS_ADDR"),
		InfluxURL:            os.Getenv("INFLUXDB_URL"),
		InfluxToken:          os.Getenv("INFLUXDB_TOKEN"),
		InfluxOrg:            os.Getenv("INFLUXDB_ORG"),
		InfluxBucket:         os.Getenv("INFLUXDB_BUCKET"),
		AuditDatabaseURL:     os.Getenv("AUDIT_DATABASE_URL"),
	}

	if cfg.ElbArn == "" {
		return nil, fmt.Errorf("ELB_ARN is required")
	}
	if cfg.ElbListenerArn == "" {
		return nil, fmt.Errorf("ELB_LISTENER_ARN is required")
	}
	if cfg.SqsQueueURL == "" {
		return nil, fmt.Errorf("SQS_QUEUE_URL is required")
	}

	cfg.ElbShedPercent = clampedInt("ELB_SHED_PERCENT", 5, 0, 100)
	cfg.MaxElbShedPercent = clampedInt("MAX_ELB_SHED_PERCENT", 100, 0, 100)
	cfg.ElbRestorePercent = clampedInt("ELB_RESTORE_PERCENT", 5, 0, 100)
	cfg.ShedMesgDelaySec = clampedInt("SHED_MESG_DELAY_SEC", 60, 60, 300)
	cfg.RestoreMesgDelaySec = clampedInt("RESTORE_MESG_DELAY_SEC", 120, 60, 300)

	return cfg, nil
}

func clampedInt(name string, def, min, max int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("warn: %s=%q is not an integer, using default %d", name, raw, def)
		return def
	}

	if v < min {
		log.Printf("warn: %s=%d below range [%d,%d], clamping to %d", name, v, min, max, min)
		return min
	}
	if v > max {
		log.Printf("warn: %s=%d above range [%d,%d], clamping to %d", name, v, min, max, max)
		return max
	}
	return v
}
