package store

import (
	"context"

	"github.com/jacentio/twine/model"
)

// Reader is the read side of the record store.
type Reader interface {
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]*model.Customer, error)

	// GetCredential returns the credential without its customer.
	GetCredential(ctx context.Context, id string) (*model.Credential, error)

	// GetCredentialWithCustomer returns the credential and its customer in
	// one round trip. A credential whose customer is missing is not found.
	GetCredentialWithCustomer(ctx context.Context, id string) (*model.Credential, error)

	// ListCredentials returns every credential without its customer.
	ListCredentials(ctx context.Context) ([]*model.Credential, error)

	// ListCredentialsWithCustomer returns every credential joined with its
	// customer using batch reads. Credentials without a customer are skipped.
	ListCredentialsWithCustomer(ctx context.Context) ([]*model.Credential, error)
}

// Writer is the write side of the record store. Writers are only reachable
// through a unit of work.
type Writer interface {
	// InsertCustomer generates the customer's ID and stores it.
	InsertCustomer(ctx context.Context, c *model.Customer) error

	// InsertCredential stores a credential under its customer's ID. The
	// customer must exist or have been inserted earlier in the same unit of work.
	InsertCredential(ctx context.Context, c *model.Credential) error

	UpdateCustomer(ctx context.Context, c *model.Customer) error
	UpdateCredential(ctx context.Context, c *model.Credential) error
	DeleteCredential(ctx context.Context, c *model.Credential) error
	DeleteCustomer(ctx context.Context, c *model.Customer) error
}

// Tx is a unit of work.
type Tx interface {
	Reader
	Writer
}

// RecordStore is shared by all requests. Atomic runs fn in a unit of work:
// writes made through tx become visible together when fn returns nil and
// are discarded otherwise.
type RecordStore interface {
	Reader
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// CheckCredentialKey validates the shared-key invariant before an insert.
func CheckCredentialKey(c *model.Credential) error {
	if c.ID == "" || !c.SharesKey() {
		return ErrKeyMismatch
	}
	return nil
}
