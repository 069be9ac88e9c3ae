// Package model defines the two records twine persists: a Customer and the
// Credential that shares its identifier.
package model

// Customer is the owning side of the pair. Its ID is generated by the store
// when the customer is first inserted.
type Customer struct {
	ID      string
	Name    string
	Version int64
}

// Credential is the dependent side of the pair. Its ID is never generated on
// its own: it is always the ID of the Customer it belongs to.
//
// The association is unidirectional. A Credential can reach its Customer,
// a Customer has no reference back.
type Credential struct {
	ID       string
	Password string
	Version  int64

	// Customer is only populated by joined reads and by drafts linked
	// before insertion.
	Customer *Customer
}

// Link attaches the credential to its customer.
func (c *Credential) Link(customer *Customer) {
	c.Customer = customer
}

// SharesKey reports whether the credential's ID matches its linked customer.
// An unlinked credential trivially shares its key.
func (c *Credential) SharesKey() bool {
	return c.Customer == nil || c.Customer.ID == c.ID
}
