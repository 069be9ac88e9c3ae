// Package storetest holds behaviour tests shared by every store.RecordStore
// implementation that can run without external services.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/twine/mapper"
	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/service"
	"github.com/jacentio/twine/store"
)

// Factory returns an empty store.
type Factory func(t *testing.T) store.RecordStore

// Run runs the shared suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.RecordStore)
	}{
		{"CreatePair", testCreatePair},
		{"RollbackOnError", testRollbackOnError},
		{"CredentialNeedsCustomer", testCredentialNeedsCustomer},
		{"DuplicateCredential", testDuplicateCredential},
		{"KeyMismatch", testKeyMismatch},
		{"UpdateVersions", testUpdateVersions},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteOrder", testDeleteOrder},
		{"Lists", testLists},
		{"NotFound", testNotFound},
		{"CustomerWithoutCredential", testCustomerWithoutCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func createPair(t *testing.T, s store.RecordStore, name, password string) (*model.Customer, *model.Credential) {
	t.Helper()
	ctx := context.Background()
	customer := &model.Customer{Name: name}
	credential := &model.Credential{Password: password}

	err := s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.InsertCustomer(ctx, customer); err != nil {
			return err
		}
		credential.ID = customer.ID
		credential.Link(customer)
		return tx.InsertCredential(ctx, credential)
	})
	require.NoError(t, err)
	return customer, credential
}

func testCreatePair(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	customer, credential := createPair(t, s, "jack", "asd")

	require.NotEmpty(t, customer.ID)
	assert.Equal(t, customer.ID, credential.ID)
	assert.EqualValues(t, 1, customer.Version)
	assert.EqualValues(t, 1, credential.Version)

	got, err := s.GetCredentialWithCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "asd", got.Password)
	require.NotNil(t, got.Customer)
	assert.Equal(t, &model.Customer{ID: customer.ID, Name: "jack", Version: 1}, got.Customer)

	plain, err := s.GetCredential(ctx, customer.ID)
	require.NoError(t, err)
	assert.Nil(t, plain.Customer)
}

func testRollbackOnError(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.InsertCustomer(ctx, &model.Customer{Name: "ghost"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Empty(t, customers)
}

func testCredentialNeedsCustomer(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	err := s.Atomic(ctx, func(tx store.Tx) error {
		return tx.InsertCredential(ctx, &model.Credential{ID: "nobody", Password: "x"})
	})
	assert.ErrorIs(t, err, store.ErrParentNotFound)
}

func testDuplicateCredential(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	customer, _ := createPair(t, s, "jack", "asd")

	err := s.Atomic(ctx, func(tx store.Tx) error {
		return tx.InsertCredential(ctx, &model.Credential{ID: customer.ID, Password: "again"})
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := s.GetCredential(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "asd", got.Password)
}

func testKeyMismatch(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	customer, _ := createPair(t, s, "jack", "asd")

	err := s.Atomic(ctx, func(tx store.Tx) error {
		c := &model.Credential{ID: "other", Password: "x"}
		c.Link(customer)
		return tx.InsertCredential(ctx, c)
	})
	assert.ErrorIs(t, err, store.ErrKeyMismatch)
}

func testUpdateVersions(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	customer, _ := createPair(t, s, "jack", "asd")

	stale, err := s.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)

	err = s.Atomic(ctx, func(tx store.Tx) error {
		c, err := tx.GetCustomer(ctx, customer.ID)
		if err != nil {
			return err
		}
		c.Name = "john"
		return tx.UpdateCustomer(ctx, c)
	})
	require.NoError(t, err)

	got, err := s.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "john", got.Name)
	assert.EqualValues(t, 2, got.Version)

	err = s.Atomic(ctx, func(tx store.Tx) error {
		stale.Name = "lost"
		return tx.UpdateCustomer(ctx, stale)
	})
	assert.ErrorIs(t, err, store.ErrConcurrentModification)
}

func testUpdateMissing(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	err := s.Atomic(ctx, func(tx store.Tx) error {
		return tx.UpdateCredential(ctx, &model.Credential{ID: "missing", Version: 1})
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteOrder(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	customer, credential := createPair(t, s, "jack", "asd")

	err := s.Atomic(ctx, func(tx store.Tx) error {
		return tx.DeleteCustomer(ctx, customer)
	})
	require.ErrorIs(t, err, store.ErrHasChildren)

	err = s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.DeleteCredential(ctx, credential); err != nil {
			return err
		}
		return tx.DeleteCustomer(ctx, customer)
	})
	require.NoError(t, err)

	_, err = s.GetCustomer(ctx, customer.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetCredential(ctx, customer.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testLists(t *testing.T, s store.RecordStore) {
	ctx := context.Background()

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, customers)
	assert.Empty(t, customers)

	jack, _ := createPair(t, s, "jack", "asd")
	ann, _ := createPair(t, s, "ann", "zxc")

	customers, err = s.ListCustomers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{jack.ID, ann.ID}, customerIDs(customers))

	credentials, err := s.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, credentials, 2)
	for _, c := range credentials {
		assert.Nil(t, c.Customer)
	}

	joined, err := s.ListCredentialsWithCustomer(ctx)
	require.NoError(t, err)
	require.Len(t, joined, 2)
	names := map[string]string{}
	for _, c := range joined {
		require.NotNil(t, c.Customer)
		assert.Equal(t, c.ID, c.Customer.ID)
		names[c.ID] = c.Customer.Name
	}
	assert.Equal(t, map[string]string{jack.ID: "jack", ann.ID: "ann"}, names)
}

func testNotFound(t *testing.T, s store.RecordStore) {
	ctx := context.Background()

	_, err := s.GetCustomer(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetCredential(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetCredentialWithCustomer(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// testCustomerWithoutCredential checks that pair operations refuse a customer
// whose credential is missing and leave it untouched.
func testCustomerWithoutCredential(t *testing.T, s store.RecordStore) {
	ctx := context.Background()
	lone := &model.Customer{Name: "lone"}
	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		return tx.InsertCustomer(ctx, lone)
	}))

	svc := service.New(s, nil)
	err := svc.Update(ctx, lone.ID, mapper.CustomerWithCredential{Name: "changed", Password: "pw"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, lone.ID), store.ErrNotFound)

	got, err := s.GetCustomer(ctx, lone.ID)
	require.NoError(t, err)
	assert.Equal(t, &model.Customer{ID: lone.ID, Name: "lone", Version: 1}, got)

	_, err = s.GetCredential(ctx, lone.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func customerIDs(customers []*model.Customer) []string {
	ids := make([]string, 0, len(customers))
	for _, c := range customers {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}
