// Package memstore is an in-memory record store backed by go-memdb.
//
// Every unit of work is a single memdb write transaction, so writers are
// serialized and a failed unit of work is aborted without leaving a trace.
// Reads outside a unit of work see the last committed snapshot.
package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/store"
)

const (
	CustomerTable   = "customer"
	CredentialTable = "credential"

	// PK is the name of the primary index, required by memdb to be "id".
	PK = "id"
)

// Schema returns the memdb schema for customers and credentials.
func Schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			CustomerTable: {
				Name: CustomerTable,
				Indexes: map[string]*memdb.IndexSchema{
					PK: {
						Name:    PK,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			CredentialTable: {
				Name: CredentialTable,
				Indexes: map[string]*memdb.IndexSchema{
					PK: {
						Name:    PK,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

// Store is an in-memory store.RecordStore.
type Store struct {
	db *memdb.MemDB
}

var _ store.RecordStore = (*Store)(nil)

// New creates an empty Store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(Schema())
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &Store{db: db}, nil
}

// Atomic runs fn inside one write transaction. The transaction is committed
// when fn returns nil and aborted otherwise.
func (s *Store) Atomic(_ context.Context, fn func(tx store.Tx) error) error {
	txn := s.db.Txn(true)
	defer txn.Abort() // no-op after Commit

	if err := fn(&Tx{repo: repo{txn}}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) view() repo {
	return repo{s.db.Txn(false)}
}

// GetCustomer returns the customer with id.
func (s *Store) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	return s.view().GetCustomer(ctx, id)
}

// ListCustomers returns every customer.
func (s *Store) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	return s.view().ListCustomers(ctx)
}

// GetCredential returns the credential without its customer.
func (s *Store) GetCredential(ctx context.Context, id string) (*model.Credential, error) {
	return s.view().GetCredential(ctx, id)
}

// GetCredentialWithCustomer reads both records from one snapshot.
func (s *Store) GetCredentialWithCustomer(ctx context.Context, id string) (*model.Credential, error) {
	return s.view().GetCredentialWithCustomer(ctx, id)
}

// ListCredentials returns every credential without customers.
func (s *Store) ListCredentials(ctx context.Context) ([]*model.Credential, error) {
	return s.view().ListCredentials(ctx)
}

// ListCredentialsWithCustomer skips credentials whose customer is missing.
func (s *Store) ListCredentialsWithCustomer(ctx context.Context) ([]*model.Credential, error) {
	return s.view().ListCredentialsWithCustomer(ctx)
}

// Tx is a unit of work over one memdb write transaction.
type Tx struct {
	repo
}

var _ store.Tx = (*Tx)(nil)

// InsertCustomer assigns a new ID and version 1.
func (t *Tx) InsertCustomer(_ context.Context, c *model.Customer) error {
	c.ID = uuid.NewString()
	c.Version = 1
	return t.txn.Insert(CustomerTable, copyCustomer(c))
}

// InsertCredential requires a live customer under the same ID.
func (t *Tx) InsertCredential(_ context.Context, c *model.Credential) error {
	if err := store.CheckCredentialKey(c); err != nil {
		return err
	}
	existing, err := t.rawCredential(c.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return store.ErrAlreadyExists
	}
	parent, err := t.rawCustomer(c.ID)
	if err != nil {
		return err
	}
	if parent == nil {
		return store.ErrParentNotFound
	}

	c.Version = 1
	return t.txn.Insert(CredentialTable, copyCredential(c))
}

// UpdateCustomer writes c if its version is current.
func (t *Tx) UpdateCustomer(_ context.Context, c *model.Customer) error {
	existing, err := t.rawCustomer(c.ID)
	if err != nil {
		return err
	}
	if err := checkVersion(existing != nil, versionOf(existing), c.Version); err != nil {
		return err
	}
	c.Version++
	return t.txn.Insert(CustomerTable, copyCustomer(c))
}

// UpdateCredential writes c if its version is current.
func (t *Tx) UpdateCredential(_ context.Context, c *model.Credential) error {
	existing, err := t.rawCredential(c.ID)
	if err != nil {
		return err
	}
	if err := checkVersion(existing != nil, credentialVersion(existing), c.Version); err != nil {
		return err
	}
	c.Version++
	return t.txn.Insert(CredentialTable, copyCredential(c))
}

// DeleteCredential removes c if its version is current.
func (t *Tx) DeleteCredential(_ context.Context, c *model.Credential) error {
	existing, err := t.rawCredential(c.ID)
	if err != nil {
		return err
	}
	if err := checkVersion(existing != nil, credentialVersion(existing), c.Version); err != nil {
		return err
	}
	return t.txn.Delete(CredentialTable, existing)
}

// DeleteCustomer refuses to orphan a live credential.
func (t *Tx) DeleteCustomer(_ context.Context, c *model.Customer) error {
	existing, err := t.rawCustomer(c.ID)
	if err != nil {
		return err
	}
	if err := checkVersion(existing != nil, versionOf(existing), c.Version); err != nil {
		return err
	}
	child, err := t.rawCredential(c.ID)
	if err != nil {
		return err
	}
	if child != nil {
		return store.ErrHasChildren
	}
	return t.txn.Delete(CustomerTable, existing)
}

func checkVersion(exists bool, stored, expected int64) error {
	if !exists {
		return store.ErrNotFound
	}
	if stored != expected {
		return store.ErrConcurrentModification
	}
	return nil
}

func credentialVersion(c *model.Credential) int64 {
	if c == nil {
		return 0
	}
	return c.Version
}

func versionOf(c *model.Customer) int64 {
	if c == nil {
		return 0
	}
	return c.Version
}

// Stored objects must never be mutated, so they are copied in and out.

func copyCustomer(c *model.Customer) *model.Customer {
	cp := *c
	return &cp
}

func copyCredential(c *model.Credential) *model.Credential {
	cp := *c
	cp.Customer = nil
	return &cp
}
