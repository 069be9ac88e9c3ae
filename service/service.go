// Package service coordinates customers and their credentials. Every
// mutation runs in a single unit of work so the pair is never half written.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacentio/twine/mapper"
	"github.com/jacentio/twine/model"
	"github.com/jacentio/twine/store"
)

// DemoPairs are the pairs created by Seed in a fresh deployment.
var DemoPairs = []mapper.CustomerWithCredential{
	{Name: "jack", Password: "asd"},
	{Name: "ann", Password: "zxc"},
}

// Service runs customer and credential use cases against a RecordStore.
type Service struct {
	store  store.RecordStore
	logger *slog.Logger
}

// New creates a Service. A nil logger falls back to slog.Default.
func New(s store.RecordStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, logger: logger}
}

// Create inserts the customer, copies its generated ID onto the credential
// and inserts the credential.
func (s *Service) Create(ctx context.Context, in mapper.CustomerWithCredential) (mapper.CustomerView, error) {
	customer, credential := mapper.ToDrafts(in)

	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.InsertCustomer(ctx, customer); err != nil {
			return fmt.Errorf("insert customer: %w", err)
		}
		credential.ID = customer.ID
		credential.Link(customer)
		if err := tx.InsertCredential(ctx, credential); err != nil {
			return fmt.Errorf("insert credential %s: %w", credential.ID, err)
		}
		return nil
	})
	if err != nil {
		return mapper.CustomerView{}, fmt.Errorf("create customer: %w", err)
	}

	s.logger.Info("customer created", "customerID", customer.ID)
	return mapper.ToCustomerView(customer), nil
}

// Customer returns the customer with id.
func (s *Service) Customer(ctx context.Context, id string) (mapper.CustomerView, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return mapper.CustomerView{}, fmt.Errorf("get customer %s: %w", id, err)
	}
	return mapper.ToCustomerView(c), nil
}

// Customers returns every customer.
func (s *Service) Customers(ctx context.Context) ([]mapper.CustomerView, error) {
	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return mapper.ToCustomerViews(customers), nil
}

// Credential returns the credential with id. With includeCustomer the
// customer is loaded in the same read.
func (s *Service) Credential(ctx context.Context, id string, includeCustomer bool) (mapper.CredentialView, error) {
	var (
		c   *model.Credential
		err error
	)
	if includeCustomer {
		c, err = s.store.GetCredentialWithCustomer(ctx, id)
	} else {
		c, err = s.store.GetCredential(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", id, err)
	}
	return mapper.ToCredentialView(c, includeCustomer), nil
}

// Credentials returns every credential, all in the variant chosen by includeCustomer.
func (s *Service) Credentials(ctx context.Context, includeCustomer bool) ([]mapper.CredentialView, error) {
	var (
		credentials []*model.Credential
		err         error
	)
	if includeCustomer {
		credentials, err = s.store.ListCredentialsWithCustomer(ctx)
	} else {
		credentials, err = s.store.ListCredentials(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return mapper.ToCredentialViews(credentials, includeCustomer), nil
}

// Update overwrites the name and password of the pair with id. The
// credential is looked up by the customer's ID.
func (s *Service) Update(ctx context.Context, id string, in mapper.CustomerWithCredential) error {
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		customer, credential, err := loadPair(ctx, tx, id)
		if err != nil {
			return err
		}

		customer.Name = in.Name
		credential.Password = in.Password

		if err := tx.UpdateCustomer(ctx, customer); err != nil {
			return fmt.Errorf("update customer: %w", err)
		}
		if err := tx.UpdateCredential(ctx, credential); err != nil {
			return fmt.Errorf("update credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update customer %s: %w", id, err)
	}

	s.logger.Info("customer updated", "customerID", id)
	return nil
}

// Delete removes the credential and then its customer.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		customer, credential, err := loadPair(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := tx.DeleteCredential(ctx, credential); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		if err := tx.DeleteCustomer(ctx, customer); err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete customer %s: %w", id, err)
	}

	s.logger.Info("customer deleted", "customerID", id)
	return nil
}

// Seed creates each pair in order and stops at the first failure.
func (s *Service) Seed(ctx context.Context, pairs []mapper.CustomerWithCredential) error {
	for _, p := range pairs {
		if _, err := s.Create(ctx, p); err != nil {
			return fmt.Errorf("seed %q: %w", p.Name, err)
		}
	}
	s.logger.Info("seeded customers", "count", len(pairs))
	return nil
}

func loadPair(ctx context.Context, tx store.Tx, id string) (*model.Customer, *model.Credential, error) {
	customer, err := tx.GetCustomer(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get customer: %w", err)
	}
	credential, err := tx.GetCredential(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get credential: %w", err)
	}
	return customer, credential, nil
}
