package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/audit"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/tick"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/alarmadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/queueadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/weighthistory"
)

func main() {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}

	lb := lbadapter.New(elasticloadbalancingv2.NewFromConfig(awsCfg))
	alarm := alarmadapter.New(cloudwatch.NewFromConfig(awsCfg))
	queue := queueadapter.NewSQSQueue(sqs.NewFromConfig(awsCfg))

	h := &tick.Handler{
		LB:         lb,
		Alarm:      alarm,
		Queue:      queue,
		WeightHist: buildWeightRecorder(),
		Audit:      buildAuditStore(),
	}

	lambda.Start(h.Handle)
}

func buildWeightRecorder() weighthistory.Recorder {
	url := os.Getenv("INFLUXDB_URL")
	if url == "" {
		return weighthistory.NoopRecorder{}
	}
	return weighthistory.NewInfluxRecorder(url, os.Getenv("INFLUXDB_TOKEN"), os.Getenv("INFLUXDB_ORG"), os.Getenv("INFLUXDB_BUCKET"))
}

func buildAuditStore() audit.Store {
	dbURL := os.Getenv("AUDIT_DATABASE_URL")
	if dbURL == "" {
		log.Fatalf("AUDIT_DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("open audit database: %v", err)
	}
	return audit.NewPostgresStore(db)
}
