package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/twine/mapper"
	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/store"
	"github.com/jacentio/twine/store/memstore"
)

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	s, err := memstore.New()
	require.NoError(t, err)
	return New(s, nil), s
}

func TestCreateSharesKey(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, mapper.CustomerWithCredential{Name: "jack", Password: "asd"})
	require.NoError(t, err)
	require.NotEmpty(t, view.ID)
	assert.Equal(t, "jack", view.Name)

	credential, err := s.GetCredential(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, credential.ID)
	assert.Equal(t, "asd", credential.Password)
}

func TestCredentialIncludeCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, mapper.CustomerWithCredential{Name: "jack", Password: "asd"})
	require.NoError(t, err)

	eager, err := svc.Credential(ctx, created.ID, true)
	require.NoError(t, err)
	assert.Equal(t, mapper.EagerCredential{
		ID:       created.ID,
		Password: "asd",
		Customer: mapper.CustomerView{ID: created.ID, Name: "jack"},
	}, eager)

	lazy, err := svc.Credential(ctx, created.ID, false)
	require.NoError(t, err)
	assert.Equal(t, mapper.LazyCredential{ID: created.ID, Password: "asd"}, lazy)
}

func TestMissingIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Customer(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	for _, include := range []bool{true, false} {
		_, err := svc.Credential(ctx, "missing", include)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}

	assert.ErrorIs(t, svc.Delete(ctx, "missing"), store.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, mapper.CustomerWithCredential{Name: "jack", Password: "asd"})
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, created.ID, mapper.CustomerWithCredential{Name: "john", Password: "qwe"}))

	view, err := svc.Credential(ctx, created.ID, true)
	require.NoError(t, err)
	assert.Equal(t, mapper.EagerCredential{
		ID:       created.ID,
		Password: "qwe",
		Customer: mapper.CustomerView{ID: created.ID, Name: "john"},
	}, view)
}

func TestUpdateMissingChangesNothing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, mapper.CustomerWithCredential{Name: "jack", Password: "asd"})
	require.NoError(t, err)

	err = svc.Update(ctx, "missing", mapper.CustomerWithCredential{Name: "john", Password: "qwe"})
	require.ErrorIs(t, err, store.ErrNotFound)

	customers, err := svc.Customers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []mapper.CustomerView{created}, customers)
}

func TestPairOperationsNeedBothHalves(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()

	lone := &model.Customer{Name: "lone"}
	require.NoError(t, s.Atomic(ctx, func(tx store.Tx) error {
		return tx.InsertCustomer(ctx, lone)
	}))

	err := svc.Update(ctx, lone.ID, mapper.CustomerWithCredential{Name: "changed", Password: "pw"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, lone.ID), store.ErrNotFound)

	view, err := svc.Customer(ctx, lone.ID)
	require.NoError(t, err)
	assert.Equal(t, mapper.CustomerView{ID: lone.ID, Name: "lone"}, view)

	got, err := s.GetCustomer(ctx, lone.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, mapper.CustomerWithCredential{Name: "jack", Password: "asd"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.Customer(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Credential(ctx, created.ID, false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListsAfterSeed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx, DemoPairs))

	customers, err := svc.Customers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, len(DemoPairs))

	names := make([]string, 0, len(customers))
	for _, c := range customers {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"jack", "ann"}, names)

	credentials, err := svc.Credentials(ctx, true)
	require.NoError(t, err)
	require.Len(t, credentials, len(DemoPairs))
	for _, c := range credentials {
		eager, ok := c.(mapper.EagerCredential)
		require.True(t, ok)
		assert.Equal(t, eager.ID, eager.Customer.ID)
	}

	credentials, err = svc.Credentials(ctx, false)
	require.NoError(t, err)
	for _, c := range credentials {
		assert.IsType(t, mapper.LazyCredential{}, c)
	}
}

var errInjected = errors.New("injected")

// failingStore fails every InsertCredential after the wrapped store has
// accepted the customer.
type failingStore struct {
	store.RecordStore
}

func (f failingStore) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.RecordStore.Atomic(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx})
	})
}

type failingTx struct {
	store.Tx
}

func (failingTx) InsertCredential(context.Context, *model.Credential) error {
	return errInjected
}

func TestCreateIsAtomic(t *testing.T) {
	s, err := memstore.New()
	require.NoError(t, err)
	svc := New(failingStore{RecordStore: s}, nil)
	ctx := context.Background()

	_, err = svc.Create(ctx, mapper.CustomerWithCredential{Name: "jack", Password: "asd"})
	require.ErrorIs(t, err, errInjected)

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Empty(t, customers)
}
