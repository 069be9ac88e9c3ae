// Package store persists customers and their credentials as shared-key
// one-to-one pairs.
//
// The package defines the record store contract ([RecordStore], [Tx]) used by
// the coordination service, plus the DynamoDB implementation ([Store]).
// Other implementations live in subpackages:
//
//   - store/memstore: in-memory, backed by go-memdb
//   - store/sqlstore: SQLite or PostgreSQL through sqlx
//
// # Shared keys
//
// A credential never gets an identifier of its own. The customer is inserted
// first, the store generates its ID, and the credential is inserted with that
// same ID inside the same unit of work:
//
//	err := records.Atomic(ctx, func(tx store.Tx) error {
//	    if err := tx.InsertCustomer(ctx, customer); err != nil {
//	        return err
//	    }
//	    credential.ID = customer.ID
//	    return tx.InsertCredential(ctx, credential)
//	})
//
// # DynamoDB layout
//
// Each entity has its own table keyed by "id". Items carry managed
// attributes (entity_ref, parent_ref, version, created_at, updated_at, ttl).
// Deletes are soft: ttl is set to now and reads treat expired items as
// absent until DynamoDB TTL removes them.
//
// A unit of work buffers writes and commits them with a single
// TransactWriteItems call. Reads issued inside it are strongly consistent but
// do not observe the buffered writes.
//
// # Errors
//
//   - [ErrNotFound] - entity doesn't exist or is deleted
//   - [ErrParentNotFound] - credential references a missing customer
//   - [ErrAlreadyExists] - entity with ID already exists
//   - [ErrHasChildren] - customer still has a live credential
//   - [ErrConcurrentModification] - optimistic lock failed
//   - [ErrKeyMismatch] - credential ID differs from its customer's ID
package store
