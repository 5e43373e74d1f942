package location

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client DynamoStore needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps one item per session keyed by "session_id". A save
// rewrites the zip and record attributes in a single UpdateItem, which
// DynamoDB applies atomically.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	session   string
}

func NewDynamoStore(client DynamoAPI, tableName, session string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		session:   session,
	}
}

func (s *DynamoStore) itemKey() map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{
		"session_id": &dynamodbtypes.AttributeValueMemberS{Value: s.session},
	}
}

func (s *DynamoStore) getItem(ctx context.Context) (map[string]dynamodbtypes.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return out.Item, nil
}

func (s *DynamoStore) update(ctx context.Context, expr string, names map[string]string, values map[string]dynamodbtypes.AttributeValue) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.itemKey(),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

func (s *DynamoStore) Save(ctx context.Context, rec Record) error {
	rec, err := prepareRecord(rec)
	if err != nil {
		return err
	}
	av, err := attributevalue.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}
	names := map[string]string{"#loc": KeyLocation, "#zip": KeyZipCode}
	values := map[string]dynamodbtypes.AttributeValue{":loc": av}
	expr := "SET #loc = :loc REMOVE #zip"
	if rec.ZipCode != "" {
		values[":zip"] = &dynamodbtypes.AttributeValueMemberS{Value: rec.ZipCode}
		expr = "SET #loc = :loc, #zip = :zip"
	}
	if err := s.update(ctx, expr, names, values); err != nil {
		return fmt.Errorf("failed to save location to DynamoDB: %w", err)
	}
	return nil
}

func (s *DynamoStore) Load(ctx context.Context) (Record, error) {
	item, err := s.getItem(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to get location: %w", err)
	}
	av, ok := item[KeyLocation]
	if !ok {
		return Record{}, nil
	}
	var rec Record
	if err := attributevalue.Unmarshal(av, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal location: %w", err)
	}
	return rec, nil
}

func (s *DynamoStore) Clear(ctx context.Context) error {
	return s.update(ctx, "REMOVE #loc, #zip", map[string]string{"#loc": KeyLocation, "#zip": KeyZipCode}, nil)
}

func (s *DynamoStore) Permission(ctx context.Context) (Permission, error) {
	item, err := s.getItem(ctx)
	if err != nil {
		return PermissionUnset, fmt.Errorf("failed to get location permission: %w", err)
	}
	if v, ok := item[KeyPermission].(*dynamodbtypes.AttributeValueMemberS); ok {
		return ParsePermission(v.Value), nil
	}
	return PermissionUnset, nil
}

func (s *DynamoStore) SetPermission(ctx context.Context, p Permission) error {
	return s.update(ctx, "SET #perm = :perm",
		map[string]string{"#perm": KeyPermission},
		map[string]dynamodbtypes.AttributeValue{":perm": &dynamodbtypes.AttributeValueMemberS{Value: string(p)}},
	)
}

func (s *DynamoStore) Prompted(ctx context.Context) (bool, error) {
	item, err := s.getItem(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get prompt flag: %w", err)
	}
	v, ok := item[KeyHasPrompted].(*dynamodbtypes.AttributeValueMemberBOOL)
	return ok && v.Value, nil
}

func (s *DynamoStore) SetPrompted(ctx context.Context) error {
	return s.update(ctx, "SET #prompted = :prompted",
		map[string]string{"#prompted": KeyHasPrompted},
		map[string]dynamodbtypes.AttributeValue{":prompted": &dynamodbtypes.AttributeValueMemberBOOL{Value: true}},
	)
}
