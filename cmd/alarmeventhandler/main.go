package main

import (
	"context"
	"database/sql"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/alarmevent"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/audit"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/config"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/idempotency"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/queueadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/weighthistory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}

	lb := lbadapter.New(elasticloadbalancingv2.NewFromConfig(awsCfg))
	queue := queueadapter.NewSQSQueue(sqs.NewFromConfig(awsCfg))

	idemStore := buildIdempotencyStore(cfg)
	weightRecorder := buildWeightRecorder(cfg)
	auditStore := buildAuditStore(cfg)

	h := &alarmevent.Handler{
		Config:      cfg,
		LB:          lb,
		Queue:       queue,
		Idempotency: idemStore,
		WeightHist:  weightRecorder,
		Audit:       auditStore,
	}

	lambda.Start(h.Handle)
}

func buildIdempotencyStore(cfg *config.Config) idempotency.Store {
	if cfg.IdempotencyRedisAddr == "" {
		return idempotency.NoopStore{}
	}
	return idempotency.NewRedisStore(cfg.IdempotencyRedisAddr)
}

func buildWeightRecorder(cfg *config.Config) weighthistory.Recorder {
	if cfg.InfluxURL == "" {
		return weighthistory.NoopRecorder{}
	}
	return weighthistory.NewInfluxRecorder(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
}

func buildAuditStore(cfg *config.Config) audit.Store {
	if cfg.AuditDatabaseURL == "" {
		log.Fatalf("AUDIT_DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.AuditDatabaseURL)
	if err != nil {
		log.Fatalf("open audit database: %v", err)
	}
	return audit.NewPostgresStore(db)
}
