package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"

	"github.com/aws-samples/alb-target-group-load-shedding/internal/adminapi"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/alarmevent"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/audit"
	"github.com/aws-samples/alb-target-group-load-shedding/internal/config"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/idempotency"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/lbadapter"
	"github.com/aws-samples/alb-target-group-load-shedding/pkg/messaging"
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

	natsClient, err := messaging.NewClient(messaging.Config{
		URL:           os.Getenv("NATS_URL"),
		Name:          "adminapi",
		ReconnectWait: time.Second,
		MaxReconnects: 5,
	})
	if err != nil {
		log.Fatalf("connect to NATS: %v", err)
	}
	defer natsClient.Close()

	auditStore := audit.NewInMemoryStore(64)

	alarmHandler := &alarmevent.Handler{
		Config:      cfg,
		LB:          lb,
		Queue:       queueadapter.NewNATSQueue(natsClient),
		Idempotency: idempotency.NoopStore{},
		WeightHist:  weighthistory.NoopRecorder{},
		Audit:       auditStore,
	}

	jwtSecret := os.Getenv("ADMIN_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatalf("ADMIN_JWT_SECRET is required")
	}

	server := adminapi.New(lb, alarmHandler, auditStore, jwtSecret)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	if err := server.Start(ctx, ":"+port); err != nil {
		log.Fatalf("admin api: %v", err)
	}
}
