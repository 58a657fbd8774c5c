// Package dynamo provides a DynamoDB-backed facetdb backend.
//
// Records are items with partition key `_id` (the record key) and sort key
// `_rng`. Index items keep `_rng` unique per source entity and carry the
// record's own sort key in `_sort`. Writes use TransactWriteItems; the state op carries a condition
// expression on `_v`, and cancellation reasons are mapped back onto the
// backend failure classes.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/roach88/facetdb/internal/backend"
	"github.com/roach88/facetdb/internal/record"
)

const (
	attrKey     = "_id"
	attrSort    = "_rng"
	attrVersion = "_v"

	// attrRecordSort holds Record.Sort when the item sort differs from it.
	attrRecordSort = "_sort"
)

// API is the subset of the DynamoDB client the backend calls.
// *dynamodb.Client satisfies it; tests substitute a fake.
type API interface {
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// Store is a backend.Backend over DynamoDB.
type Store struct {
	api API
}

var _ backend.Backend = (*Store)(nil)

// New wraps an existing DynamoDB client.
func New(api API) *Store {
	return &Store{api: api}
}

// Connect builds a client from the default AWS configuration chain.
// endpoint overrides the service URL, e.g. http://localhost:8000 for
// amazon/dynamodb-local.
func Connect(ctx context.Context, region, endpoint string) (*Store, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client), nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}

// TransactWrite submits ops as one TransactWriteItems call.
func (s *Store) TransactWrite(ctx context.Context, table string, ops []backend.Op) error {
	if len(ops) > backend.MaxTransactionItems {
		return fmt.Errorf("transact write: %d ops exceeds limit of %d", len(ops), backend.MaxTransactionItems)
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for i, op := range ops {
		put, err := buildPut(table, op)
		if err != nil {
			return fmt.Errorf("transact write: op %d: %w", i, err)
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return classify("transact write", err)
	}
	return nil
}

// buildPut encodes op as a Put, adding the version condition for state ops.
func buildPut(table string, op backend.Op) (*types.Put, error) {
	item, err := attributevalue.MarshalMap(op.Record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	if sort := record.StorageSort(op.Record); sort != op.Record.Sort {
		item[attrSort] = &types.AttributeValueMemberS{Value: sort}
		item[attrRecordSort] = &types.AttributeValueMemberS{Value: op.Record.Sort}
	}

	put := &types.Put{
		TableName: aws.String(table),
		Item:      item,
	}
	if op.Kind != backend.OpPutState {
		return put, nil
	}

	expected, err := attributevalue.Marshal(op.ExpectedVersion)
	if err != nil {
		return nil, fmt.Errorf("marshal expected version: %w", err)
	}
	put.ExpressionAttributeNames = map[string]string{"#v": attrVersion}
	put.ExpressionAttributeValues = map[string]types.AttributeValue{":expected": expected}
	put.ConditionExpression = aws.String("#v = :expected")
	if op.ExpectedVersion == 0 {
		put.ExpressionAttributeNames["#id"] = attrKey
		put.ConditionExpression = aws.String("attribute_not_exists(#id) OR #v = :expected")
	}
	return put, nil
}

// Get reads one item with a strongly consistent read.
func (s *Store) Get(ctx context.Context, table, key, sort string) (record.Record, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            itemKey(key, sort),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return record.Record{}, false, classify("get item", err)
	}
	if len(out.Item) == 0 {
		return record.Record{}, false, nil
	}

	r, err := decodeItem(out.Item)
	if err != nil {
		return record.Record{}, false, fmt.Errorf("get item: %w", err)
	}
	return r, true, nil
}

// Query reads every item under key in ascending sort order, following
// pagination until the result set is exhausted.
func (s *Store) Query(ctx context.Context, table, key string) ([]record.Record, error) {
	records := []record.Record{}
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(table),
			KeyConditionExpression:   aws.String("#id = :id"),
			ExpressionAttributeNames: map[string]string{"#id": attrKey},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":id": &types.AttributeValueMemberS{Value: key},
			},
			ConsistentRead:    aws.Bool(true),
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, classify("query", err)
		}

		for _, item := range out.Items {
			r, err := decodeItem(item)
			if err != nil {
				return nil, fmt.Errorf("query: %w", err)
			}
			records = append(records, r)
		}

		if len(out.LastEvaluatedKey) == 0 {
			return records, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// CreateTable creates an on-demand table with the facetdb key schema.
func (s *Store) CreateTable(ctx context.Context, table string) error {
	_, err := s.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSort), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSort), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return classify("create table", err)
	}
	return nil
}

// decodeItem unmarshals an item and restores the record's own sort key.
func decodeItem(item map[string]types.AttributeValue) (record.Record, error) {
	var r record.Record
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return record.Record{}, fmt.Errorf("unmarshal: %w", err)
	}
	if sort, ok := item[attrRecordSort].(*types.AttributeValueMemberS); ok {
		r.Sort = sort.Value
	}
	return r, nil
}

func itemKey(key, sort string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKey:  &types.AttributeValueMemberS{Value: key},
		attrSort: &types.AttributeValueMemberS{Value: sort},
	}
}

// Cancellation reason codes reported by TransactWriteItems.
const (
	reasonConditionalCheckFailed = "ConditionalCheckFailed"
	reasonThrottling             = "ThrottlingError"
	reasonTransactionConflict    = "TransactionConflict"
	reasonThroughputExceeded     = "ProvisionedThroughputExceeded"
)

// classify maps SDK errors onto the backend failure classes.
//
// Condition failures inside a cancelled transaction win over every other
// reason. Throttling, server faults, cancelled contexts and errors that never
// reached the service (network) are transient. Requests the SDK refused to
// send and anything else the service rejected are returned wrapped as is.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backend.Unavailable(op, err)
	}

	// Generated validators return the value type.
	var (
		invalid    smithy.InvalidParamsError
		invalidPtr *smithy.InvalidParamsError
	)
	if errors.As(err, &invalid) || errors.As(err, &invalidPtr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		transient := false
		for _, reason := range canceled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case reasonConditionalCheckFailed:
				return fmt.Errorf("%s: %w: %w", op, backend.ErrConditionFailed, err)
			case reasonThrottling, reasonTransactionConflict, reasonThroughputExceeded:
				transient = true
			}
		}
		if transient {
			return backend.Unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		inProgress *types.TransactionInProgressException
		internal   *types.InternalServerError
	)
	if errors.As(err, &throughput) || errors.As(err, &limit) ||
		errors.As(err, &inProgress) || errors.As(err, &internal) {
		return backend.Unavailable(op, err)
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return backend.Unavailable(op, err)
	}
	if apiErr.ErrorCode() == "ThrottlingException" || apiErr.ErrorFault() == smithy.FaultServer {
		return backend.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
