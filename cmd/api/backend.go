package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/es-bank-account/internal/config"
	"github.com/example/es-bank-account/internal/infrastructure/store"
)

// backend is the event log and snapshot store the service runs on
type backend struct {
	events    store.EventLog
	snapshots store.SnapshotStore
	close     func() error
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.Storage.Backend {
	case "sql":
		return openSQL(ctx, cfg.Storage, log)
	case "dynamo":
		return openDynamo(ctx, cfg.Dynamo, log)
	case "memory":
		log.Warn("using in-memory storage; events are lost on exit")
		return &backend{
			events:    store.NewMemoryEventStore(),
			snapshots: store.NewMemorySnapshotStore(),
			close:     func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openSQL(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*backend, error) {
	dialect, err := store.DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := store.Connect(dialect, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("connected to database", slog.String("driver", cfg.Driver))
	return sqlBackend(db, dialect, log), nil
}

func sqlBackend(db *sql.DB, dialect store.Dialect, log *slog.Logger) *backend {
	return &backend{
		events:    store.NewSQLEventStore(db, dialect, log),
		snapshots: store.NewSQLSnapshotStore(db, dialect, log),
		close:     db.Close,
	}
}

func openDynamo(ctx context.Context, cfg config.DynamoConfig, log *slog.Logger) (*backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	log.Info("using DynamoDB",
		slog.String("region", cfg.Region),
		slog.String("events_table", cfg.EventsTable),
		slog.String("snapshots_table", cfg.SnapshotsTable),
	)
	return &backend{
		events:    store.NewDynamoEventStore(client, cfg.EventsTable, log),
		snapshots: store.NewDynamoSnapshotStore(client, cfg.SnapshotsTable, log),
		close:     func() error { return nil },
	}, nil
}
