package memstore

import (
	"context"

	"github.com/hashicorp/go-memdb"

	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/store"
)

// repo implements store.Reader over a memdb transaction, read-only or not.
type repo struct {
	txn *memdb.Txn
}

func (r repo) rawCustomer(id string) (*model.Customer, error) {
	raw, err := r.txn.First(CustomerTable, PK, id)
	if err != nil || raw == nil {
		return nil, err
	}
	return raw.(*model.Customer), nil
}

func (r repo) rawCredential(id string) (*model.Credential, error) {
	raw, err := r.txn.First(CredentialTable, PK, id)
	if err != nil || raw == nil {
		return nil, err
	}
	return raw.(*model.Credential), nil
}

func (r repo) GetCustomer(_ context.Context, id string) (*model.Customer, error) {
	c, err := r.rawCustomer(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, store.ErrNotFound
	}
	return copyCustomer(c), nil
}

func (r repo) ListCustomers(_ context.Context) ([]*model.Customer, error) {
	iter, err := r.txn.Get(CustomerTable, PK)
	if err != nil {
		return nil, err
	}

	list := []*model.Customer{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		list = append(list, copyCustomer(raw.(*model.Customer)))
	}
	return list, nil
}

func (r repo) GetCredential(_ context.Context, id string) (*model.Credential, error) {
	c, err := r.rawCredential(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, store.ErrNotFound
	}
	return copyCredential(c), nil
}

// GetCredentialWithCustomer reads both records from the same snapshot.
func (r repo) GetCredentialWithCustomer(ctx context.Context, id string) (*model.Credential, error) {
	credential, err := r.GetCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	customer, err := r.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	credential.Link(customer)
	return credential, nil
}

func (r repo) ListCredentials(_ context.Context) ([]*model.Credential, error) {
	iter, err := r.txn.Get(CredentialTable, PK)
	if err != nil {
		return nil, err
	}

	list := []*model.Credential{}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		list = append(list, copyCredential(raw.(*model.Credential)))
	}
	return list, nil
}

// ListCredentialsWithCustomer joins every credential with its customer.
// Credentials whose customer is missing are skipped.
func (r repo) ListCredentialsWithCustomer(ctx context.Context) ([]*model.Credential, error) {
	credentials, err := r.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}

	joined := make([]*model.Credential, 0, len(credentials))
	for _, c := range credentials {
		customer, err := r.rawCustomer(c.ID)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			continue
		}
		c.Link(copyCustomer(customer))
		joined = append(joined, c)
	}
	return joined, nil
}
