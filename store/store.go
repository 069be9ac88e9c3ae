package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jacentio/twine/model"
)

// batchGetLimit is the maximum number of keys per BatchGetItem request.
const batchGetLimit = 100

var errUnprocessedKeys = errors.New("unprocessed keys remain")

// Store provides DynamoDB operations for shared-key customer/credential pairs.
type Store struct {
	client   Client
	config   Config
	registry *Registry
}

var _ RecordStore = (*Store)(nil)

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client:   client,
		config:   config,
		registry: DefaultRegistry(config),
	}
}

// Config returns the store's table configuration.
func (s *Store) Config() Config {
	return s.config
}

// Registry returns the relationship registry.
func (s *Store) Registry() *Registry {
	return s.registry
}

func (s *Store) customer(id string) customerEntity {
	return customerEntity{table: s.config.CustomerTable, id: id}
}

func (s *Store) credential(id string) credentialEntity {
	return credentialEntity{
		table:       s.config.CredentialTable,
		parentTable: s.config.CustomerTable,
		id:          id,
	}
}

// Atomic runs fn in a unit of work and commits its writes in one transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx := &dynamoTx{
		Store:    s,
		now:      time.Now(),
		inserted: make(map[string]bool),
		deleted:  make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

// Get retrieves the raw item by key, returning ErrNotFound if deleted or missing.
func (s *Store) Get(ctx context.Context, table string, key PK) (map[string]types.AttributeValue, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	// Check if entity is deleted (has expired TTL)
	if IsDeleted(result.Item) {
		return nil, ErrNotFound
	}

	return result.Item, nil
}

// GetCustomer returns the customer with the given ID.
func (s *Store) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	e := s.customer(id)
	item, err := s.Get(ctx, e.TableName(), e.GetKey())
	if err != nil {
		return nil, err
	}
	return toCustomer(item)
}

// ListCustomers returns every live customer.
func (s *Store) ListCustomers(ctx context.Context) ([]*model.Customer, error) {
	raws, err := s.scan(ctx, s.config.CustomerTable)
	if err != nil {
		return nil, err
	}
	customers := make([]*model.Customer, 0, len(raws))
	for _, raw := range raws {
		c, err := toCustomer(raw)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, nil
}

// GetCredential returns the credential with the given ID, without its customer.
func (s *Store) GetCredential(ctx context.Context, id string) (*model.Credential, error) {
	e := s.credential(id)
	item, err := s.Get(ctx, e.TableName(), e.GetKey())
	if err != nil {
		return nil, err
	}
	return toCredential(item)
}

// GetCredentialWithCustomer reads both items of the pair in one
// TransactGetItems call, so the two halves come from the same snapshot.
func (s *Store) GetCredentialWithCustomer(ctx context.Context, id string) (*model.Credential, error) {
	cred, cust := s.credential(id), s.customer(id)
	result, err := s.client.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{
		TransactItems: []types.TransactGetItem{
			{Get: &types.Get{TableName: aws.String(cred.TableName()), Key: cred.GetKey()}},
			{Get: &types.Get{TableName: aws.String(cust.TableName()), Key: cust.GetKey()}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(result.Responses) != 2 {
		return nil, ErrNotFound
	}
	credRaw, custRaw := result.Responses[0].Item, result.Responses[1].Item
	if credRaw == nil || IsDeleted(credRaw) || custRaw == nil || IsDeleted(custRaw) {
		return nil, ErrNotFound
	}

	credential, err := toCredential(credRaw)
	if err != nil {
		return nil, err
	}
	customer, err := toCustomer(custRaw)
	if err != nil {
		return nil, err
	}
	credential.Link(customer)
	return credential, nil
}

// ListCredentials returns every live credential, without customers.
func (s *Store) ListCredentials(ctx context.Context) ([]*model.Credential, error) {
	raws, err := s.scan(ctx, s.config.CredentialTable)
	if err != nil {
		return nil, err
	}
	credentials := make([]*model.Credential, 0, len(raws))
	for _, raw := range raws {
		c, err := toCredential(raw)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, c)
	}
	return credentials, nil
}

// ListCredentialsWithCustomer scans the credentials and fetches their
// customers with BatchGetItem, batchGetLimit keys at a time.
func (s *Store) ListCredentialsWithCustomer(ctx context.Context) ([]*model.Credential, error) {
	credentials, err := s.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if len(credentials) == 0 {
		return credentials, nil
	}

	keys := make([]map[string]types.AttributeValue, 0, len(credentials))
	for _, c := range credentials {
		keys = append(keys, s.customer(c.ID).GetKey())
	}
	customers, err := s.batchGetCustomers(ctx, keys)
	if err != nil {
		return nil, err
	}

	joined := make([]*model.Credential, 0, len(credentials))
	for _, c := range credentials {
		customer, ok := customers[c.ID]
		if !ok {
			continue
		}
		c.Link(customer)
		joined = append(joined, c)
	}
	return joined, nil
}

// batchBackOff paces retries of unprocessed BatchGetItem keys.
func (s *Store) batchBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.BatchRetryInterval
	b.Multiplier = 2
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = s.config.BatchRetryTimeout
	b.Reset()
	return b
}

func (s *Store) batchGetCustomers(ctx context.Context, keys []map[string]types.AttributeValue) (map[string]*model.Customer, error) {
	table := s.config.CustomerTable
	customers := make(map[string]*model.Customer, len(keys))

	for start := 0; start < len(keys); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(keys) {
			end = len(keys)
		}
		pending := map[string]types.KeysAndAttributes{
			table: {Keys: keys[start:end], ConsistentRead: aws.Bool(true)},
		}

		// Retry until DynamoDB has processed every key of the chunk
		fetch := func() error {
			result, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return backoff.Permanent(err)
			}
			for _, raw := range result.Responses[table] {
				if IsDeleted(raw) {
					continue
				}
				c, err := toCustomer(raw)
				if err != nil {
					return backoff.Permanent(err)
				}
				customers[c.ID] = c
			}
			pending = result.UnprocessedKeys
			if len(pending) > 0 {
				return errUnprocessedKeys
			}
			return nil
		}
		if err := backoff.Retry(fetch, backoff.WithContext(s.batchBackOff(), ctx)); err != nil {
			return nil, fmt.Errorf("batch get %s: %w", table, err)
		}
	}
	return customers, nil
}

// scan reads a whole table with automatic TTL filtering.
func (s *Store) scan(ctx context.Context, table string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String(TTLFilterExpr()),
		ExpressionAttributeNames:  TTLFilterNames(),
		ExpressionAttributeValues: TTLFilterValues(),
		ConsistentRead:            aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// SetTTLByKey sets TTL on an entity by table and key.
// Used by cascade delete to propagate TTL to dependents.
func (s *Store) SetTTLByKey(ctx context.Context, table string, key PK, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(table),
		Key:                 key,
		UpdateExpression:    aws.String("SET #ttl = :ttl, #version = #version + :one"),
		ConditionExpression: aws.String("attribute_exists(id) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl":     "ttl",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(ttl, 10),
			},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})

	// Ignore condition failure - missing or already has TTL
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

func toCustomer(raw map[string]types.AttributeValue) (*model.Customer, error) {
	var item customerItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("unmarshal customer: %w", err)
	}
	return &model.Customer{ID: item.ID, Name: item.Name, Version: item.Version}, nil
}

func toCredential(raw map[string]types.AttributeValue) (*model.Credential, error) {
	var item credentialItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &model.Credential{ID: item.ID, Password: item.Password, Version: item.Version}, nil
}

// writeKind records what a transaction item does, for error mapping.
type writeKind int

const (
	writeInsert writeKind = iota
	writeParentCheck
	writeChildCheck
	writeMutate
)

// dynamoTx buffers writes until commit. Reads go straight to the table.
type dynamoTx struct {
	*Store

	now      time.Time
	items    []types.TransactWriteItem
	kinds    []writeKind
	inserted map[string]bool
	deleted  map[string]bool
}

func (t *dynamoTx) add(kind writeKind, item types.TransactWriteItem) {
	t.items = append(t.items, item)
	t.kinds = append(t.kinds, kind)
}

// InsertCustomer generates the customer ID and queues the put.
func (t *dynamoTx) InsertCustomer(_ context.Context, c *model.Customer) error {
	c.ID = uuid.NewString()
	c.Version = 1
	item, err := attributevalue.MarshalMap(customerItem{ID: c.ID, Name: c.Name})
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	t.put(t.customer(c.ID), item)
	return nil
}

// InsertCredential queues the credential put. Unless the customer was
// inserted in this unit of work, a condition check on the customer is queued too.
func (t *dynamoTx) InsertCredential(_ context.Context, c *model.Credential) error {
	if err := CheckCredentialKey(c); err != nil {
		return err
	}
	c.Version = 1
	item, err := attributevalue.MarshalMap(credentialItem{ID: c.ID, Password: c.Password})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	t.put(t.credential(c.ID), item)
	return nil
}

func (t *dynamoTx) UpdateCustomer(_ context.Context, c *model.Customer) error {
	t.update(t.customer(c.ID), map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: c.Name},
	}, c.Version)
	c.Version++
	return nil
}

func (t *dynamoTx) UpdateCredential(_ context.Context, c *model.Credential) error {
	t.update(t.credential(c.ID), map[string]types.AttributeValue{
		"password": &types.AttributeValueMemberS{Value: c.Password},
	}, c.Version)
	c.Version++
	return nil
}

func (t *dynamoTx) DeleteCredential(_ context.Context, c *model.Credential) error {
	t.softDelete(t.credential(c.ID), c.Version)
	return nil
}

// DeleteCustomer queues the customer's soft delete. Unless its credential is
// deleted in this unit of work, the credential must already be gone.
func (t *dynamoTx) DeleteCustomer(_ context.Context, c *model.Customer) error {
	child := t.credential(c.ID)
	if !t.deleted[child.EntityRef()] {
		t.add(writeChildCheck, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName:                 aws.String(child.TableName()),
				Key:                       child.GetKey(),
				ConditionExpression:       aws.String(NoLiveChildCondition()),
				ExpressionAttributeNames:  TTLFilterNames(),
				ExpressionAttributeValues: ttlValuesAt(t.now),
			},
		})
	}
	t.softDelete(t.customer(c.ID), c.Version)
	return nil
}

// put queues an entity put with parent validation.
func (t *dynamoTx) put(entity Entity, item map[string]types.AttributeValue) {
	nowISO := t.now.UTC().Format(time.RFC3339)

	if checker, ok := entity.(ParentChecker); ok {
		parentRef := checker.ParentRef()
		// DynamoDB rejects two operations on one item in a transaction, and a
		// parent written by this transaction needs no check anyway.
		if check := checker.ParentCheck(); check != nil && !t.inserted[parentRef] {
			t.add(writeParentCheck, types.TransactWriteItem{
				ConditionCheck: &types.ConditionCheck{
					TableName:                 aws.String(check.TableName),
					Key:                       check.Key,
					ConditionExpression:       aws.String(ParentExistsCondition()),
					ExpressionAttributeNames:  TTLFilterNames(),
					ExpressionAttributeValues: ttlValuesAt(t.now),
				},
			})
		}
		if parentRef != "" {
			item["parent_ref"] = &types.AttributeValueMemberS{Value: parentRef}
		}
	}

	item["entity_ref"] = &types.AttributeValueMemberS{Value: entity.EntityRef()}
	item["version"] = &types.AttributeValueMemberN{Value: "1"}
	item["created_at"] = &types.AttributeValueMemberS{Value: nowISO}
	item["updated_at"] = &types.AttributeValueMemberS{Value: nowISO}

	t.add(writeInsert, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(entity.TableName()),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		},
	})
	t.inserted[entity.EntityRef()] = true
}

// update queues a SET of the given attributes with optimistic locking.
func (t *dynamoTx) update(entity Entity, item map[string]types.AttributeValue, expectedVersion int64) {
	exprNames := map[string]string{
		"#updated_at": "updated_at",
		"#version":    "version",
		"#ttl":        "ttl",
	}
	exprValues := map[string]types.AttributeValue{
		":updated_at":       &types.AttributeValueMemberS{Value: t.now.UTC().Format(time.RFC3339)},
		":one":              &types.AttributeValueMemberN{Value: "1"},
		":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
	}

	attrs := make([]string, 0, len(item))
	for k := range item {
		if isManaged(k) {
			continue
		}
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)

	var setClauses []string
	for i, k := range attrs {
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = item[k]
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}
	setClauses = append(setClauses, "#updated_at = :updated_at", "#version = #version + :one")

	t.add(writeMutate, types.TransactWriteItem{
		Update: &types.Update{
			TableName:                           aws.String(entity.TableName()),
			Key:                                 entity.GetKey(),
			UpdateExpression:                    aws.String("SET " + strings.Join(setClauses, ", ")),
			ConditionExpression:                 aws.String(liveVersionCondition()),
			ExpressionAttributeNames:            exprNames,
			ExpressionAttributeValues:           exprValues,
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	})
}

// softDelete queues setting the entity's TTL to now.
// This also increments the version to fail concurrent updates.
func (t *dynamoTx) softDelete(entity Entity, expectedVersion int64) {
	t.deleted[entity.EntityRef()] = true
	t.add(writeMutate, types.TransactWriteItem{
		Update: &types.Update{
			TableName:           aws.String(entity.TableName()),
			Key:                 entity.GetKey(),
			UpdateExpression:    aws.String("SET #ttl = :now, #version = #version + :one"),
			ConditionExpression: aws.String(liveVersionCondition()),
			ExpressionAttributeNames: map[string]string{
				"#ttl":     "ttl",
				"#version": "version",
			},
			ExpressionAttributeValues: mergeExprValues(ttlValuesAt(t.now), map[string]types.AttributeValue{
				":one":              &types.AttributeValueMemberN{Value: "1"},
				":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
			}),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	})
}

func (t *dynamoTx) commit(ctx context.Context) error {
	if len(t.items) == 0 {
		return nil
	}
	_, err := t.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: t.items,
	})
	return t.mapTransactionError(err)
}

// mapTransactionError maps a cancelled transaction back to a sentinel error
// using the kind of the item that failed its condition.
func (t *dynamoTx) mapTransactionError(err error) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return err
	}
	for i, reason := range txErr.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(t.kinds) {
			continue
		}
		switch t.kinds[i] {
		case writeInsert:
			return ErrAlreadyExists
		case writeParentCheck:
			return ErrParentNotFound
		case writeChildCheck:
			return ErrHasChildren
		default:
			// The old image tells a stale version apart from a missing item
			if reason.Item != nil && !IsDeleted(reason.Item) {
				return ErrConcurrentModification
			}
			return ErrNotFound
		}
	}
	return err
}

// isManaged reports whether an attribute is maintained by the store.
func isManaged(k string) bool {
	switch k {
	case "id", "entity_ref", "parent_ref", "version", "created_at", "updated_at", "ttl":
		return true
	}
	return false
}
