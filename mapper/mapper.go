// Package mapper converts between records and the shapes the API exposes.
// Every function is pure.
package mapper

import "github.com/jacentio/twine/model"

// CustomerWithCredential is the combined input for creating or updating a pair.
type CustomerWithCredential struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CustomerView is the outward shape of a customer.
type CustomerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CredentialView is either an EagerCredential or a LazyCredential.
type CredentialView interface {
	credentialView()
}

// LazyCredential carries no customer data.
type LazyCredential struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

func (LazyCredential) credentialView() {}

// EagerCredential embeds the owning customer.
type EagerCredential struct {
	ID       string       `json:"id"`
	Password string       `json:"password"`
	Customer CustomerView `json:"customer"`
}

func (EagerCredential) credentialView() {}

// ToCustomerView copies the customer's outward fields.
func ToCustomerView(c *model.Customer) CustomerView {
	return CustomerView{ID: c.ID, Name: c.Name}
}

// ToCustomerViews maps every customer. The result is never nil.
func ToCustomerViews(customers []*model.Customer) []CustomerView {
	views := make([]CustomerView, 0, len(customers))
	for _, c := range customers {
		views = append(views, ToCustomerView(c))
	}
	return views
}

// ToDrafts builds unsaved records with empty IDs. The credential is not
// linked; the caller links it once the customer exists.
func ToDrafts(in CustomerWithCredential) (*model.Customer, *model.Credential) {
	return &model.Customer{Name: in.Name}, &model.Credential{Password: in.Password}
}

// ToCredentialView picks the eager variant when includeCustomer is set. An
// unloaded customer is still named by the shared key.
func ToCredentialView(c *model.Credential, includeCustomer bool) CredentialView {
	if !includeCustomer {
		return LazyCredential{ID: c.ID, Password: c.Password}
	}
	customer := CustomerView{ID: c.ID}
	if c.Customer != nil {
		customer = ToCustomerView(c.Customer)
	}
	return EagerCredential{ID: c.ID, Password: c.Password, Customer: customer}
}

// ToCredentialViews maps every credential to the same variant.
func ToCredentialViews(credentials []*model.Credential, includeCustomer bool) []CredentialView {
	views := make([]CredentialView, 0, len(credentials))
	for _, c := range credentials {
		views = append(views, ToCredentialView(c, includeCustomer))
	}
	return views
}
