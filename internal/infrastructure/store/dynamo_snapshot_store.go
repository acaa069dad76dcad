package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoSnapshotStore keeps snapshot history in its own table. The partition
// key joins snapshot type and aggregate id; the sort key is the version.
type DynamoSnapshotStore struct {
	client    DynamoAPI
	tableName string
	log       *slog.Logger
}

// dynamoSnapshot represents the DynamoDB item structure for snapshots
type dynamoSnapshot struct {
	SnapshotKey  string `dynamodbav:"snapshot_key"`
	Version      int    `dynamodbav:"version"` // Event version at snapshot time
	ID           string `dynamodbav:"id"`
	AggregateID  string `dynamodbav:"aggregate_id"`
	SnapshotType string `dynamodbav:"snapshot_type"`
	State        string `dynamodbav:"state"` // Serialized aggregate state
	CreatedAt    string `dynamodbav:"created_at"`
}

func NewDynamoSnapshotStore(client DynamoAPI, tableName string, log *slog.Logger) *DynamoSnapshotStore {
	return &DynamoSnapshotStore{
		client:    client,
		tableName: tableName,
		log:       log.With(slog.String("snapshot_store", "dynamodb")),
	}
}

// SaveSnapshot stores a snapshot without overwriting an existing one for the same version
func (s *DynamoSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	item := dynamoSnapshot{
		SnapshotKey:  snapshotKey(snapshot.SnapshotType, snapshot.AggregateID),
		Version:      snapshot.Version,
		ID:           snapshot.ID,
		AggregateID:  snapshot.AggregateID,
		SnapshotType: snapshot.SnapshotType,
		State:        string(snapshot.State),
		CreatedAt:    formatTextTime(snapshot.CreatedAt),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			s.log.Debug("snapshot already exists",
				slog.String("aggregate_id", snapshot.AggregateID),
				slog.Int("version", snapshot.Version),
			)
			return nil
		}
		return fmt.Errorf("failed to put snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the highest-version snapshot for an aggregate
func (s *DynamoSnapshotStore) GetLatest(ctx context.Context, snapshotType, aggregateID string) (*Snapshot, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("snapshot_key = :key"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: snapshotKey(snapshotType, aggregateID)},
		},
		ScanIndexForward: aws.Bool(false), // Descending order
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, nil // No snapshot exists
	}
	return fromDynamoSnapshot(result.Items[0])
}

// GetAt returns the snapshot with the latest created_at not after pointInTime
func (s *DynamoSnapshotStore) GetAt(ctx context.Context, snapshotType, aggregateID string, pointInTime time.Time) (*Snapshot, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("snapshot_key = :key"),
		FilterExpression:       aws.String("created_at <= :ts"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: snapshotKey(snapshotType, aggregateID)},
			":ts":  &types.AttributeValueMemberS{Value: formatTextTime(pointInTime)},
		},
		ConsistentRead: aws.Bool(true),
	})

	var found *Snapshot
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get snapshot: %w", err)
		}
		for _, item := range page.Items {
			snap, err := fromDynamoSnapshot(item)
			if err != nil {
				return nil, err
			}
			if found == nil || snap.CreatedAt.After(found.CreatedAt) ||
				(snap.CreatedAt.Equal(found.CreatedAt) && snap.Version > found.Version) {
				found = snap
			}
		}
	}
	return found, nil
}

func fromDynamoSnapshot(item map[string]types.AttributeValue) (*Snapshot, error) {
	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	createdAt, err := parseTextTime(ds.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:           ds.ID,
		AggregateID:  ds.AggregateID,
		SnapshotType: ds.SnapshotType,
		Version:      ds.Version,
		State:        json.RawMessage(ds.State),
		CreatedAt:    createdAt,
	}, nil
}

var _ SnapshotStore = (*DynamoSnapshotStore)(nil)
