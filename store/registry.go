package store

// Relationship defines a shared-key parent-child relationship for cascade
// operations. The child item lives in ChildTableName under the parent's key.
type Relationship struct {
	// ParentType is the parent entity type (e.g., "customer").
	ParentType string

	// ChildType is the child entity type (e.g., "credential").
	ChildType string

	// ChildTableName is the DynamoDB table name for the child (e.g., "twine_credentials").
	ChildTableName string
}

// Registry holds all known entity relationships for cascade operations.
type Registry struct {
	relationships []Relationship
	byParent      map[string][]Relationship
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		relationships: []Relationship{},
		byParent:      make(map[string][]Relationship),
	}
}

// DefaultRegistry registers the customer to credential relationship for the
// tables named in config.
func DefaultRegistry(config Config) *Registry {
	config.validate()
	r := NewRegistry()
	r.Register(Relationship{
		ParentType:     CustomerType,
		ChildType:      CredentialType,
		ChildTableName: config.CredentialTable,
	})
	return r
}

// Register adds a relationship to the registry.
func (r *Registry) Register(rel Relationship) {
	r.relationships = append(r.relationships, rel)
	r.byParent[rel.ParentType] = append(r.byParent[rel.ParentType], rel)
}

// ChildrenOf returns all child relationships for a given parent type.
func (r *Registry) ChildrenOf(parentType string) []Relationship {
	return r.byParent[parentType]
}

// AllRelationships returns all registered relationships.
func (r *Registry) AllRelationships() []Relationship {
	return r.relationships
}

// HasChildren returns true if the parent type has any registered child relationships.
func (r *Registry) HasChildren(parentType string) bool {
	return len(r.byParent[parentType]) > 0
}
