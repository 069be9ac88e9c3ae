package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/store"
)

const (
	selectCustomerStatement = `
SELECT id, name, version FROM customers WHERE id = ?`

	listCustomersStatement = `
SELECT id, name, version FROM customers ORDER BY id`

	selectCredentialStatement = `
SELECT id, password, version FROM credentials WHERE id = ?`

	listCredentialsStatement = `
SELECT id, password, version FROM credentials ORDER BY id`

	joinedCredentialColumns = `
SELECT cr.id, cr.password, cr.version, cu.name AS customer_name, cu.version AS customer_version
FROM credentials cr
INNER JOIN customers cu ON cu.id = cr.id`

	selectCredentialWithCustomerStatement = joinedCredentialColumns + `
WHERE cr.id = ?`

	listCredentialsWithCustomerStatement = joinedCredentialColumns + `
ORDER BY cr.id`
)

type customerRow struct {
	ID      string `db:"id"`
	Name    string `db:"name"`
	Version int64  `db:"version"`
}

func (r customerRow) model() *model.Customer {
	return &model.Customer{ID: r.ID, Name: r.Name, Version: r.Version}
}

type credentialRow struct {
	ID       string `db:"id"`
	Password string `db:"password"`
	Version  int64  `db:"version"`
}

func (r credentialRow) model() *model.Credential {
	return &model.Credential{ID: r.ID, Password: r.Password, Version: r.Version}
}

type joinedRow struct {
	credentialRow
	CustomerName    string `db:"customer_name"`
	CustomerVersion int64  `db:"customer_version"`
}

func (r joinedRow) model() *model.Credential {
	c := r.credentialRow.model()
	c.Link(&model.Customer{ID: r.ID, Name: r.CustomerName, Version: r.CustomerVersion})
	return c
}

// repo implements store.Reader over a database or a transaction.
type repo struct {
	db sqlx.ExtContext
}

func (r repo) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := sqlx.GetContext(ctx, r.db, dest, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (r repo) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var row customerRow
	if err := r.get(ctx, &row, selectCustomerStatement, id); err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (r repo) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	var rows []customerRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, listCustomersStatement); err != nil {
		return nil, err
	}
	customers := make([]*model.Customer, 0, len(rows))
	for _, row := range rows {
		customers = append(customers, row.model())
	}
	return customers, nil
}

func (r repo) GetCredential(ctx context.Context, id string) (*model.Credential, error) {
	var row credentialRow
	if err := r.get(ctx, &row, selectCredentialStatement, id); err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (r repo) GetCredentialWithCustomer(ctx context.Context, id string) (*model.Credential, error) {
	var row joinedRow
	if err := r.get(ctx, &row, selectCredentialWithCustomerStatement, id); err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (r repo) ListCredentials(ctx context.Context) ([]*model.Credential, error) {
	var rows []credentialRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, listCredentialsStatement); err != nil {
		return nil, err
	}
	credentials := make([]*model.Credential, 0, len(rows))
	for _, row := range rows {
		credentials = append(credentials, row.model())
	}
	return credentials, nil
}

func (r repo) ListCredentialsWithCustomer(ctx context.Context) ([]*model.Credential, error) {
	var rows []joinedRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, listCredentialsWithCustomerStatement); err != nil {
		return nil, err
	}
	credentials := make([]*model.Credential, 0, len(rows))
	for _, row := range rows {
		credentials = append(credentials, row.model())
	}
	return credentials, nil
}
