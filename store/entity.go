package store

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Entity types, also used as the prefix of entity references.
const (
	CustomerType   = "customer"
	CredentialType = "credential"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// IDKey returns the key of an item in a table keyed by "id".
func IDKey(id string) PK {
	return PK{"id": &types.AttributeValueMemberS{Value: id}}
}

// Entity is the base interface for all storable types.
type Entity interface {
	// TableName returns the DynamoDB table name for this entity type.
	TableName() string

	// GetKey returns the primary key for this entity.
	GetKey() PK

	// EntityRef returns the type-qualified reference (e.g., "customer#uuid").
	EntityRef() string

	// EntityType returns the entity type name (e.g., "customer").
	EntityType() string
}

// ParentChecker is implemented by entities that have a parent.
type ParentChecker interface {
	// ParentCheck returns the condition check for parent validation.
	// Returns nil when parent validation should be skipped.
	ParentCheck() *ConditionCheck

	// ParentRef returns the parent's entity reference (e.g., "customer#uuid").
	ParentRef() string
}

// ConditionCheck addresses the parent item checked with ParentExistsCondition.
type ConditionCheck struct {
	TableName string
	Key       PK
}

// EntityRef builds a type-qualified reference.
func EntityRef(entityType, id string) string {
	return entityType + "#" + id
}

// ParseEntityRef splits an entity_ref into its type and ID.
func ParseEntityRef(ref string) (entityType, id string, ok bool) {
	entityType, id, ok = strings.Cut(ref, "#")
	if !ok || entityType == "" || id == "" {
		return "", "", false
	}
	return entityType, id, true
}

// customerEntity addresses a customer item.
type customerEntity struct {
	table string
	id    string
}

func (e customerEntity) TableName() string  { return e.table }
func (e customerEntity) GetKey() PK         { return IDKey(e.id) }
func (e customerEntity) EntityRef() string  { return EntityRef(CustomerType, e.id) }
func (e customerEntity) EntityType() string { return CustomerType }

// credentialEntity addresses a credential item. Its parent lives in the
// customers table under the same key.
type credentialEntity struct {
	table       string
	parentTable string
	id          string
}

func (e credentialEntity) TableName() string  { return e.table }
func (e credentialEntity) GetKey() PK         { return IDKey(e.id) }
func (e credentialEntity) EntityRef() string  { return EntityRef(CredentialType, e.id) }
func (e credentialEntity) EntityType() string { return CredentialType }

func (e credentialEntity) ParentCheck() *ConditionCheck {
	return &ConditionCheck{
		TableName: e.parentTable,
		Key:       IDKey(e.id),
	}
}

func (e credentialEntity) ParentRef() string {
	return EntityRef(CustomerType, e.id)
}

// customerItem and credentialItem are the user attributes of each table.
// Managed attributes are added by the store.
type customerItem struct {
	ID      string `dynamodbav:"id"`
	Name    string `dynamodbav:"name"`
	Version int64  `dynamodbav:"version,omitempty"`
}

type credentialItem struct {
	ID       string `dynamodbav:"id"`
	Password string `dynamodbav:"password"`
	Version  int64  `dynamodbav:"version,omitempty"`
}
