package kinesis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/es-bank-account/internal/infrastructure/store"
)

var errNilImage = errors.New("DynamoDB image is nil")

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams format) to store.Event.
// Only INSERT records carry new events; anything else returns nil, nil.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record to store.Event
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}
	return convertDynamoDBImage(record.Change.NewImage)
}

// convertDynamoDBImage maps the stream image onto SDK attribute values and
// decodes it with the same codec the event log writes with.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, errNilImage
	}

	item := make(map[string]types.AttributeValue, len(image))
	for name, v := range image {
		switch v.DataType() {
		case events.DataTypeString:
			item[name] = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			item[name] = &types.AttributeValueMemberN{Value: v.Number()}
		default:
			// the event table only writes strings and numbers
		}
	}

	event, err := store.EventFromDynamoItem(item)
	if err != nil {
		return nil, err
	}
	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("missing required fields: id=%s, aggregate_id=%s, event_type=%s",
			event.ID, event.AggregateID, event.EventType)
	}
	return &event, nil
}

// BatchConvertFromKinesisEvent converts every record of a Kinesis event.
// Failed records come back as errors keyed by their sequence number.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent) ([]*store.Event, map[string]error) {
	var eventList []*store.Event
	failed := make(map[string]error)

	for _, record := range kinesisEvent.Records {
		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			failed[record.Kinesis.SequenceNumber] = fmt.Errorf("record %s: %w", record.EventID, err)
			continue
		}
		if event != nil {
			eventList = append(eventList, event)
		}
	}

	return eventList, failed
}
