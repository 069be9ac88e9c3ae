package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/pflag"

	"github.com/jacentio/twine/internal/config"
	"github.com/jacentio/twine/store"
	"github.com/jacentio/twine/store/memstore"
	"github.com/jacentio/twine/store/sqlstore"
)

// backend is an opened record store plus what the CLI needs to manage it.
type backend struct {
	store   store.RecordStore
	migrate func(ctx context.Context) error
	close   func() error
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		s, err := memstore.New()
		if err != nil {
			return nil, err
		}
		return &backend{
			store:   s,
			migrate: func(context.Context) error { return nil },
			close:   func() error { return nil },
		}, nil

	case config.BackendSQLite, config.BackendPostgres:
		driver := sqlstore.DriverSQLite
		if cfg.Store.Backend == config.BackendPostgres {
			driver = sqlstore.DriverPostgres
		}
		s, err := sqlstore.Open(ctx, driver, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:   s,
			migrate: func(context.Context) error { return s.Migrate() },
			close:   s.Close,
		}, nil

	case config.BackendDynamoDB:
		client, err := newDynamoDBClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		s := store.New(client, store.Config{
			CustomerTable:   cfg.DynamoDB.CustomerTable,
			CredentialTable: cfg.DynamoDB.CredentialTable,
		})
		logger.Debug("using dynamodb",
			"customerTable", s.Config().CustomerTable,
			"credentialTable", s.Config().CredentialTable,
		)
		return &backend{
			store:   s,
			migrate: s.EnsureTables,
			close:   func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func newDynamoDBClient(ctx context.Context, cfg config.DynamoDBConfig) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func loadConfig(configFile string, flags *pflag.FlagSet) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}
