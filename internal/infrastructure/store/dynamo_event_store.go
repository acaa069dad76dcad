package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// maxTransactItems is the DynamoDB limit on actions in one TransactWriteItems call
const maxTransactItems = 100

// allEventsPK is the fixed GSI1 partition value that makes ReadAll a single Query
const allEventsPK = "EVENTS"

// DynamoAPI is the subset of *dynamodb.Client used by the Dynamo stores
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoEventStore stores events in DynamoDB, partitioned by aggregate_id and
// sorted by version. Inserts flow on to Kinesis through the table's stream.
type DynamoEventStore struct {
	client    DynamoAPI
	tableName string
	log       *slog.Logger
}

// dynamoEvent represents the DynamoDB item structure
type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

func NewDynamoEventStore(client DynamoAPI, tableName string, log *slog.Logger) *DynamoEventStore {
	return &DynamoEventStore{
		client:    client,
		tableName: tableName,
		log:       log.With(slog.String("event_log", "dynamodb")),
	}
}

// Append writes the batch with one TransactWriteItems call. A ConditionCheck
// pins the item at expectedVersion, and every Put requires its version slot to
// be free, so DynamoDB rejects the whole batch if another writer got there first.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID string, events []Event, expectedVersion int) error {
	if len(events) == 0 {
		return nil
	}
	if err := validateBatch(aggregateID, events, expectedVersion); err != nil {
		return err
	}

	input, err := es.appendInput(aggregateID, events, expectedVersion)
	if err != nil {
		return err
	}

	if _, err := es.client.TransactWriteItems(ctx, input); err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("%w: aggregate %s is no longer at version %d", ErrConcurrencyConflict, aggregateID, expectedVersion)
		}
		return fmt.Errorf("failed to write events: %w", err)
	}

	es.log.Debug("appended",
		slog.String("aggregate_id", aggregateID),
		slog.Int("expected_version", expectedVersion),
		slog.Int("count", len(events)),
	)
	return nil
}

func (es *DynamoEventStore) appendInput(aggregateID string, events []Event, expectedVersion int) (*dynamodb.TransactWriteItemsInput, error) {
	items := make([]types.TransactWriteItem, 0, len(events)+1)

	if expectedVersion > 0 {
		items = append(items, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName: aws.String(es.tableName),
				Key: map[string]types.AttributeValue{
					"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
					"version":      &types.AttributeValueMemberN{Value: strconv.Itoa(expectedVersion)},
				},
				ConditionExpression: aws.String("attribute_exists(version)"),
			},
		})
	}

	for _, e := range events {
		av, err := attributevalue.MarshalMap(toDynamoEvent(e))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
			},
		})
	}

	if len(items) > maxTransactItems {
		return nil, fmt.Errorf("%w: %d events exceed a single DynamoDB transaction", ErrInvalidBatch, len(events))
	}
	return &dynamodb.TransactWriteItemsInput{TransactItems: items}, nil
}

// Read returns all events for an aggregate from DynamoDB
func (es *DynamoEventStore) Read(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.queryEvents(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by version
		ConsistentRead:   aws.Bool(true),
	})
}

// ReadFrom returns events for an aggregate after a specific version
func (es *DynamoEventStore) ReadFrom(ctx context.Context, aggregateID string, afterVersion int) ([]Event, error) {
	return es.queryEvents(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(afterVersion)},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})
}

// ReadUntil returns events recorded at or before pointInTime
func (es *DynamoEventStore) ReadUntil(ctx context.Context, aggregateID string, pointInTime time.Time) ([]Event, error) {
	return es.queryEvents(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		FilterExpression:       aws.String("created_at <= :ts"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ts":  &types.AttributeValueMemberS{Value: formatTextTime(pointInTime)},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	})
}

// ReadAll returns all events from DynamoDB using GSI1, ordered by created_at
func (es *DynamoEventStore) ReadAll(ctx context.Context) ([]Event, error) {
	events, err := es.queryEvents(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: allEventsPK},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	// GSI1 sorts by created_at only
	sortByTimestamp(events)
	return events, nil
}

func (es *DynamoEventStore) queryEvents(ctx context.Context, input *dynamodb.QueryInput) ([]Event, error) {
	events := make([]Event, 0)
	paginator := dynamodb.NewQueryPaginator(es.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query events: %w", err)
		}
		for _, item := range page.Items {
			e, err := fromDynamoItem(item)
			if err != nil {
				return nil, err
			}
			events = append(events, e)
		}
	}
	return events, nil
}

func toDynamoEvent(e Event) dynamoEvent {
	return dynamoEvent{
		AggregateID:   e.AggregateID,
		Version:       e.Version,
		ID:            e.ID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		Data:          string(e.Data),
		CreatedAt:     formatTextTime(e.Timestamp),
		GSI1PK:        allEventsPK,
	}
}

// fromDynamoItem converts one DynamoDB item into an Event. The Kinesis
// adapter uses it for stream records as well.
func fromDynamoItem(item map[string]types.AttributeValue) (Event, error) {
	var de dynamoEvent
	if err := attributevalue.UnmarshalMap(item, &de); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	ts, err := parseTextTime(de.CreatedAt)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            de.ID,
		AggregateID:   de.AggregateID,
		AggregateType: de.AggregateType,
		EventType:     de.EventType,
		Data:          json.RawMessage(de.Data),
		Timestamp:     ts,
		Version:       de.Version,
	}, nil
}

// EventFromDynamoItem is fromDynamoItem for callers outside the package
func EventFromDynamoItem(item map[string]types.AttributeValue) (Event, error) {
	return fromDynamoItem(item)
}

func formatTextTime(t time.Time) string {
	return t.UTC().Format(textTimeLayout)
}

func parseTextTime(v string) (time.Time, error) {
	var st sqlTime
	if err := st.parse(v); err != nil {
		return time.Time{}, err
	}
	return st.t, nil
}

// isConditionFailure reports whether DynamoDB rejected a write because one of
// its condition expressions did not hold
func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

var _ EventLog = (*DynamoEventStore)(nil)
