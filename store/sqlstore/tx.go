package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/store"
)

const (
	insertCustomerStatement = `
INSERT INTO customers (id, name, version) VALUES (?, ?, 1)`

	insertCredentialStatement = `
INSERT INTO credentials (id, password, version) VALUES (?, ?, 1)`

	updateCustomerStatement = `
UPDATE customers SET name = ?, version = version + 1 WHERE id = ? AND version = ?`

	updateCredentialStatement = `
UPDATE credentials SET password = ?, version = version + 1 WHERE id = ? AND version = ?`

	deleteCustomerStatement = `
DELETE FROM customers WHERE id = ? AND version = ?`

	deleteCredentialStatement = `
DELETE FROM credentials WHERE id = ? AND version = ?`

	countStatement = `
SELECT COUNT(*) FROM %s WHERE id = ?`
)

// Tx is a unit of work over one database transaction.
type Tx struct {
	repo
}

var _ store.Tx = (*Tx)(nil)

func (t *Tx) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.db.ExecContext(ctx, t.db.Rebind(query), args...)
}

func (t *Tx) InsertCustomer(ctx context.Context, c *model.Customer) error {
	id := uuid.NewString()
	if _, err := t.exec(ctx, insertCustomerStatement, id, c.Name); err != nil {
		return mapConstraintError(err, store.ErrParentNotFound)
	}
	c.ID = id
	c.Version = 1
	return nil
}

func (t *Tx) InsertCredential(ctx context.Context, c *model.Credential) error {
	if err := store.CheckCredentialKey(c); err != nil {
		return err
	}
	if _, err := t.exec(ctx, insertCredentialStatement, c.ID, c.Password); err != nil {
		return mapConstraintError(err, store.ErrParentNotFound)
	}
	c.Version = 1
	return nil
}

func (t *Tx) UpdateCustomer(ctx context.Context, c *model.Customer) error {
	res, err := t.exec(ctx, updateCustomerStatement, c.Name, c.ID, c.Version)
	if err := t.checkAffected(ctx, res, err, "customers", c.ID); err != nil {
		return err
	}
	c.Version++
	return nil
}

func (t *Tx) UpdateCredential(ctx context.Context, c *model.Credential) error {
	res, err := t.exec(ctx, updateCredentialStatement, c.Password, c.ID, c.Version)
	if err := t.checkAffected(ctx, res, err, "credentials", c.ID); err != nil {
		return err
	}
	c.Version++
	return nil
}

func (t *Tx) DeleteCredential(ctx context.Context, c *model.Credential) error {
	res, err := t.exec(ctx, deleteCredentialStatement, c.ID, c.Version)
	return t.checkAffected(ctx, res, err, "credentials", c.ID)
}

// DeleteCustomer fails with store.ErrHasChildren while the credential exists.
func (t *Tx) DeleteCustomer(ctx context.Context, c *model.Customer) error {
	res, err := t.exec(ctx, deleteCustomerStatement, c.ID, c.Version)
	if err != nil {
		return mapConstraintError(err, store.ErrHasChildren)
	}
	return t.checkAffected(ctx, res, nil, "customers", c.ID)
}

// checkAffected turns a conditional write that touched no row into
// store.ErrNotFound or store.ErrConcurrentModification.
func (t *Tx) checkAffected(ctx context.Context, res sql.Result, err error, table, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var count int
	if err := t.get(ctx, &count, fmt.Sprintf(countStatement, table), id); err != nil {
		return err
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return store.ErrConcurrentModification
}
