// Package stream provides DynamoDB Streams handlers for cascade operations.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/twine/store"
)

// TTLSetter soft-deletes an item by key. *store.Store implements it.
type TTLSetter interface {
	SetTTLByKey(ctx context.Context, table string, key store.PK, ttl int64) error
}

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	store    TTLSetter
	registry *store.Registry
	logger   *slog.Logger
}

// NewHandler creates a new stream handler. Dependents are looked up in registry.
func NewHandler(s TTLSetter, registry *store.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = store.NewRegistry()
	}
	return &Handler{
		store:    s,
		registry: registry,
		logger:   logger,
	}
}

// HandleCascadeDelete processes DynamoDB stream events to propagate TTL to
// dependents. It is meant to be used as an AWS Lambda handler.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, "ttl")
	newTTL := getNumberAttr(record.Change.NewImage, "ttl")

	// Only process when TTL is newly set
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	entityRef := getStringAttr(record.Change.NewImage, "entity_ref")
	entityType, id, ok := store.ParseEntityRef(entityRef)
	if !ok {
		return fmt.Errorf("malformed entity_ref %q", entityRef)
	}

	dependents := h.registry.ChildrenOf(entityType)
	if len(dependents) == 0 {
		return nil
	}

	h.logger.Info("processing cascade delete",
		"entityRef", entityRef,
		"dependents", len(dependents),
		"ttl", newTTL,
	)

	// Dependents share the parent's key.
	key := ConvertStreamKey(record.Change.Keys)
	if len(key) == 0 {
		key = store.IDKey(id)
	}

	for _, rel := range dependents {
		if err := h.store.SetTTLByKey(ctx, rel.ChildTableName, key, newTTL); err != nil {
			h.logger.Warn("failed to set TTL on dependent",
				"dependent", store.EntityRef(rel.ChildType, id),
				"table", rel.ChildTableName,
				"error", err,
			)
			// Continue - idempotent, will retry
		}
	}

	h.logger.Info("cascade delete completed", "entityRef", entityRef)
	return nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// ConvertStreamKey converts a DynamoDB stream key to a store.PK.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) store.PK {
	result := make(store.PK)
	for k, v := range streamKey {
		switch v.DataType() {
		case events.DataTypeString:
			result[k] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			result[k] = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			result[k] = &types.AttributeValueMemberB{Value: v.Binary()}
		}
	}
	return result
}
