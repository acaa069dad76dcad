package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/es-bank-account/internal/infrastructure/kinesis"
	"github.com/example/es-bank-account/internal/logging"
	"github.com/example/es-bank-account/internal/notification"
)

type notifier struct {
	handler *notification.Handler
	log     *slog.Logger
}

func (n *notifier) handle(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	n.log.Info("received records", slog.Int("count", len(kinesisEvent.Records)))

	var batchItemFailures []events.KinesisBatchItemFailure
	fail := func(seq string) {
		batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{ItemIdentifier: seq})
	}

	for _, record := range kinesisEvent.Records {
		seq := record.Kinesis.SequenceNumber
		event, err := kinesis.ConvertFromKinesisRecord(record)
		if err != nil {
			n.log.Error("failed to convert record", slog.String("event_id", record.EventID), slog.Any("error", err))
			fail(seq)
			continue
		}
		if event == nil {
			continue
		}

		if err := n.handler.Handle(ctx, *event); err != nil {
			n.log.Error("failed to process event", slog.String("id", event.ID), slog.Any("error", err))
			fail(seq)
		}
	}

	n.log.Info("processed records",
		slog.Int("ok", len(kinesisEvent.Records)-len(batchItemFailures)),
		slog.Int("total", len(kinesisEvent.Records)),
	)
	return events.KinesisEventResponse{BatchItemFailures: batchItemFailures}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log, err := logging.New(os.Stderr, getEnv("BANK_LOG_LEVEL", "info"), getEnv("BANK_LOG_FORMAT", "json"))
	if err != nil {
		panic(err)
	}
	n := &notifier{handler: notification.NewHandler(log), log: log}
	lambda.Start(n.handle)
}
