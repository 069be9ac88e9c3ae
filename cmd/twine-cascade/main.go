// Command twine-cascade is the Lambda function attached to the customers
// table stream. It soft-deletes a customer's credential when the customer
// is soft-deleted on its own.
//
// Table names come from TWINE_DYNAMODB_CUSTOMERTABLE and
// TWINE_DYNAMODB_CREDENTIALTABLE.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/twine/internal/config"
	"github.com/jacentio/twine/store"
	"github.com/jacentio/twine/stream"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("", nil)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	s := store.New(dynamodb.NewFromConfig(awsCfg), store.Config{
		CustomerTable:   cfg.DynamoDB.CustomerTable,
		CredentialTable: cfg.DynamoDB.CredentialTable,
	})
	h := stream.NewHandler(s, s.Registry(), logger)

	lambda.Start(h.HandleCascadeDelete)
}
