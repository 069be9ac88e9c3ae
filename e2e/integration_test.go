//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
//
// TWINE_E2E_PROFILE selects the shared AWS profile; TWINE_E2E_ENDPOINT points
// the client at DynamoDB Local instead.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/twine/mapper"
	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/service"
	"github.com/jacentio/twine/store"
)

// Table names - unique per test run to avoid conflicts
const tablePrefix = "twine-e2e-test"

var (
	testID          string
	customerTable   string
	credentialTable string

	ddbClient *dynamodb.Client
	testStore *store.Store
	testSvc   *service.Service
)

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	customerTable = fmt.Sprintf("%s-%s-customers", tablePrefix, testID)
	credentialTable = fmt.Sprintf("%s-%s-credentials", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Tables:\n")
	fmt.Printf("  - Customers: %s\n", customerTable)
	fmt.Printf("  - Credentials: %s\n", credentialTable)

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if profile := os.Getenv("TWINE_E2E_PROFILE"); profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	ddbClient = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint := os.Getenv("TWINE_E2E_ENDPOINT"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	testStore = store.New(ddbClient, store.Config{
		CustomerTable:   customerTable,
		CredentialTable: credentialTable,
	})
	if err := testStore.EnsureTables(ctx); err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		os.Exit(1)
	}
	testSvc = service.New(testStore, nil)

	code := m.Run()

	deleteTables(ctx)
	os.Exit(code)
}

func deleteTables(ctx context.Context) {
	fmt.Println("Deleting test tables...")
	for _, tableName := range []string{customerTable, credentialTable} {
		_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", tableName, err)
		}
	}
}

func createPair(t *testing.T, name, password string) mapper.CustomerView {
	t.Helper()
	view, err := testSvc.Create(context.Background(), mapper.CustomerWithCredential{Name: name, Password: password})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return view
}

// --- CRUD Tests ---

func TestCreate_SharesKey(t *testing.T) {
	ctx := context.Background()
	created := createPair(t, "jack", "asd")

	credential, err := testStore.GetCredentialWithCustomer(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCredentialWithCustomer failed: %v", err)
	}
	if credential.ID != created.ID || credential.Customer.ID != created.ID {
		t.Errorf("expected shared key %s, got credential %s customer %s", created.ID, credential.ID, credential.Customer.ID)
	}
	if credential.Password != "asd" || credential.Customer.Name != "jack" {
		t.Errorf("unexpected pair: %+v %+v", credential, credential.Customer)
	}

	item, err := testStore.Get(ctx, credentialTable, store.IDKey(created.ID))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if credential.Version != 1 {
		t.Errorf("expected version 1, got %d", credential.Version)
	}
	parentRef, _ := item["parent_ref"].(*types.AttributeValueMemberS)
	if parentRef == nil || parentRef.Value != store.EntityRef(store.CustomerType, created.ID) {
		t.Errorf("unexpected parent_ref %v", item["parent_ref"])
	}
}

func TestCreate_CredentialParentNotFound(t *testing.T) {
	ctx := context.Background()
	id := uuid.New().String()

	err := testStore.Atomic(ctx, func(tx store.Tx) error {
		return tx.InsertCredential(ctx, &model.Credential{ID: id, Password: "orphan"})
	})
	if !errors.Is(err, store.ErrParentNotFound) {
		t.Errorf("expected ErrParentNotFound, got %v", err)
	}
}

func TestCreate_DuplicateCredential(t *testing.T) {
	ctx := context.Background()
	created := createPair(t, "dup", "one")

	err := testStore.Atomic(ctx, func(tx store.Tx) error {
		return tx.InsertCredential(ctx, &model.Credential{ID: created.ID, Password: "two"})
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.Background()

	_, err := testSvc.Customer(ctx, uuid.New().String())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_, err = testSvc.Credential(ctx, uuid.New().String(), true)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_Success(t *testing.T) {
	ctx := context.Background()
	created := createPair(t, "ann", "zxc")

	if err := testSvc.Update(ctx, created.ID, mapper.CustomerWithCredential{Name: "anna", Password: "qwe"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	view, err := testSvc.Credential(ctx, created.ID, true)
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	eager, ok := view.(mapper.EagerCredential)
	if !ok {
		t.Fatalf("expected EagerCredential, got %T", view)
	}
	if eager.Password != "qwe" || eager.Customer.Name != "anna" {
		t.Errorf("update not applied: %+v", eager)
	}

	customer, err := testStore.GetCustomer(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	if customer.Version != 2 {
		t.Errorf("expected version 2, got %d", customer.Version)
	}
}

func TestUpdate_OptimisticLockFailure(t *testing.T) {
	ctx := context.Background()
	created := createPair(t, "stale", "pw")

	stale, err := testStore.GetCustomer(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	if err := testSvc.Update(ctx, created.ID, mapper.CustomerWithCredential{Name: "fresh", Password: "pw"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err = testStore.Atomic(ctx, func(tx store.Tx) error {
		stale.Name = "lost"
		return tx.UpdateCustomer(ctx, stale)
	})
	if !errors.Is(err, store.ErrConcurrentModification) {
		t.Errorf("expected ErrConcurrentModification, got %v", err)
	}
}

// --- Delete Tests ---

func TestDelete_SoftDelete_SetsTTL(t *testing.T) {
	ctx := context.Background()
	created := createPair(t, "gone", "pw")

	if err := testSvc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for _, table := range []string{customerTable, credentialTable} {
		result, err := ddbClient.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(table),
			Key:            store.IDKey(created.ID),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			t.Fatalf("GetItem failed: %v", err)
		}
		if _, ok := result.Item["ttl"].(*types.AttributeValueMemberN); !ok {
			t.Errorf("expected ttl on %s item", table)
		}
	}

	if _, err := testSvc.Customer(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDelete_OrphanProtect_FailsWithCredential(t *testing.T) {
	ctx := context.Background()
	created := createPair(t, "parent", "pw")

	customer, err := testStore.GetCustomer(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	err = testStore.Atomic(ctx, func(tx store.Tx) error {
		return tx.DeleteCustomer(ctx, customer)
	})
	if !errors.Is(err, store.ErrHasChildren) {
		t.Errorf("expected ErrHasChildren, got %v", err)
	}
}

func TestDelete_Missing(t *testing.T) {
	if err := testSvc.Delete(context.Background(), uuid.New().String()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- List Tests ---

func TestList_JoinsAndTTLFiltering(t *testing.T) {
	ctx := context.Background()
	live := createPair(t, "live", "pw")
	deleted := createPair(t, "deleted", "pw")
	if err := testSvc.Delete(ctx, deleted.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	views, err := testSvc.Credentials(ctx, true)
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}

	found := false
	for _, v := range views {
		eager := v.(mapper.EagerCredential)
		if eager.ID == deleted.ID {
			t.Errorf("deleted credential %s listed", deleted.ID)
		}
		if eager.ID == live.ID {
			found = true
			if eager.Customer.Name != "live" {
				t.Errorf("unexpected customer %+v", eager.Customer)
			}
		}
	}
	if !found {
		t.Errorf("live credential %s not listed", live.ID)
	}
}

func TestSetTTL_Idempotent(t *testing.T) {
	ctx := context.Background()
	created := createPair(t, "cascade", "pw")
	ttl := time.Now().Unix()

	for i := 0; i < 2; i++ {
		if err := testStore.SetTTLByKey(ctx, credentialTable, store.IDKey(created.ID), ttl); err != nil {
			t.Fatalf("SetTTLByKey attempt %d failed: %v", i+1, err)
		}
	}
	if _, err := testStore.GetCredential(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after TTL, got %v", err)
	}
}
