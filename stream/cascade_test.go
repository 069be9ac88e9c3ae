package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/twine/store"
	"github.com/jacentio/twine/stream"
)

type ttlCall struct {
	table string
	id    string
	ttl   int64
}

type recordingSetter struct {
	calls []ttlCall
	err   error
}

func (r *recordingSetter) SetTTLByKey(_ context.Context, table string, key store.PK, ttl int64) error {
	id := ""
	if v, ok := key["id"].(*types.AttributeValueMemberS); ok {
		id = v.Value
	}
	r.calls = append(r.calls, ttlCall{table: table, id: id, ttl: ttl})
	return r.err
}

var _ stream.TTLSetter = (*store.Store)(nil)

func softDeleteRecord(entityRef, id string, ttl string) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   "evt-1",
		EventName: "MODIFY",
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"id": events.NewStringAttribute(id),
			},
			OldImage: map[string]events.DynamoDBAttributeValue{
				"id":         events.NewStringAttribute(id),
				"entity_ref": events.NewStringAttribute(entityRef),
			},
			NewImage: map[string]events.DynamoDBAttributeValue{
				"id":         events.NewStringAttribute(id),
				"entity_ref": events.NewStringAttribute(entityRef),
				"ttl":        events.NewNumberAttribute(ttl),
			},
		},
	}
}

func TestNewHandler(t *testing.T) {
	if h := stream.NewHandler(nil, nil, nil); h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandleCascadeDelete_PropagatesToCredential(t *testing.T) {
	setter := &recordingSetter{}
	registry := store.DefaultRegistry(store.DefaultConfig())
	h := stream.NewHandler(setter, registry, nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		softDeleteRecord("customer#c1", "c1", "1704067200"),
	}}
	if err := h.HandleCascadeDelete(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(setter.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(setter.calls))
	}
	want := ttlCall{table: store.DefaultConfig().CredentialTable, id: "c1", ttl: 1704067200}
	if setter.calls[0] != want {
		t.Errorf("expected %+v, got %+v", want, setter.calls[0])
	}
}

func TestHandleCascadeDelete_LeafEntityIsIgnored(t *testing.T) {
	setter := &recordingSetter{}
	h := stream.NewHandler(setter, store.DefaultRegistry(store.DefaultConfig()), nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		softDeleteRecord("credential#c1", "c1", "1704067200"),
	}}
	if err := h.HandleCascadeDelete(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(setter.calls) != 0 {
		t.Errorf("expected no calls, got %+v", setter.calls)
	}
}

func TestHandleCascadeDelete_SetterErrorsAreTolerated(t *testing.T) {
	setter := &recordingSetter{err: errors.New("throttled")}
	h := stream.NewHandler(setter, store.DefaultRegistry(store.DefaultConfig()), nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		softDeleteRecord("customer#c1", "c1", "100"),
		softDeleteRecord("customer#c2", "c2", "100"),
	}}
	if err := h.HandleCascadeDelete(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(setter.calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(setter.calls))
	}
}

func TestHandleCascadeDelete_MalformedEntityRef(t *testing.T) {
	h := stream.NewHandler(&recordingSetter{}, store.DefaultRegistry(store.DefaultConfig()), nil)

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		softDeleteRecord("no-separator", "c1", "100"),
	}}
	if err := h.HandleCascadeDelete(context.Background(), event); err == nil {
		t.Fatal("expected error for malformed entity_ref")
	}
}

func TestConvertStreamKey(t *testing.T) {
	streamKey := map[string]events.DynamoDBAttributeValue{
		"id":      events.NewStringAttribute("test-id"),
		"version": events.NewNumberAttribute("42"),
	}

	pk := stream.ConvertStreamKey(streamKey)

	if v, ok := pk["id"].(*types.AttributeValueMemberS); !ok || v.Value != "test-id" {
		t.Error("expected id to be 'test-id'")
	}
	if v, ok := pk["version"].(*types.AttributeValueMemberN); !ok || v.Value != "42" {
		t.Error("expected version to be '42'")
	}
}

func TestConvertStreamKey_Empty(t *testing.T) {
	pk := stream.ConvertStreamKey(map[string]events.DynamoDBAttributeValue{})
	if pk == nil {
		t.Fatal("expected non-nil PK for empty input")
	}
	if len(pk) != 0 {
		t.Errorf("expected empty PK, got %d keys", len(pk))
	}
}
