package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tenantcart/apiserver/types"
)

const (
	attrTenantID  = "tenantID"
	attrUserID    = "userID"
	attrData      = "data"
	attrVersion   = "version"
	attrUpdatedAt = "updatedAt"
)

// DynamoAPI is the subset of the DynamoDB client used by the account store.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoAccountStore persists accounts in a single DynamoDB table with
// partition key tenantID and sort key userID.
type DynamoAccountStore struct {
	api   DynamoAPI
	table string
	now   func() time.Time
}

func NewDynamoAccountStore(api DynamoAPI, table string) *DynamoAccountStore {
	return &DynamoAccountStore{
		api:   api,
		table: table,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *DynamoAccountStore) Put(ctx context.Context, account types.Account) error {
	item, err := s.marshalNew(account, false)
	if err != nil {
		return err
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put: %w", err)
	}
	return nil
}

func (s *DynamoAccountStore) Create(ctx context.Context, account types.Account) error {
	item, err := s.marshalNew(account, true)
	if err != nil {
		return err
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(attrTenantID))).
		Build()
	if err != nil {
		return fmt.Errorf("dynamodb create: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.table),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("dynamodb create: %w", err)
	}
	return nil
}

func (s *DynamoAccountStore) Get(ctx context.Context, key Key) (types.Account, error) {
	if err := key.validate(); err != nil {
		return types.Account{}, err
	}

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            dynamoKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return types.Account{}, fmt.Errorf("dynamodb get: %w", err)
	}
	if len(out.Item) == 0 {
		return types.Account{}, ErrNotFound
	}

	var account types.Account
	if err := attributevalue.UnmarshalMap(out.Item, &account); err != nil {
		return types.Account{}, fmt.Errorf("dynamodb get: decode item: %w", err)
	}
	return account, nil
}

func (s *DynamoAccountStore) QueryByTenant(ctx context.Context, tenantID string) ([]types.Account, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(attrTenantID).Equal(expression.Value(tenantID))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("dynamodb query: %w", err)
	}

	accounts := make([]types.Account, 0)
	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb query: %w", err)
		}

		var page []types.Account
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("dynamodb query: decode items: %w", err)
		}
		for _, account := range page {
			if account.TenantID == tenantID {
				accounts = append(accounts, account)
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			return accounts, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *DynamoAccountStore) UpdatePartial(ctx context.Context, key Key, field string, value any) error {
	if err := key.validate(); err != nil {
		return err
	}
	if err := validateField(field); err != nil {
		return err
	}

	update := s.touch(expression.Set(expression.Name(attrData+"."+field), expression.Value(value)))
	_, err := s.update(ctx, key, update, ddbtypes.ReturnValueNone)
	return err
}

func (s *DynamoAccountStore) AppendOrder(ctx context.Context, key Key, order types.Order) ([]types.Order, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}

	orders := expression.Name(attrData + "." + OrdersField)
	appended := expression.ListAppend(
		expression.IfNotExists(orders, expression.Value([]types.Order{})),
		expression.Value([]types.Order{order}),
	)
	out, err := s.update(ctx, key, s.touch(expression.Set(orders, appended)), ddbtypes.ReturnValueAllNew)
	if err != nil {
		return nil, err
	}

	var account types.Account
	if err := attributevalue.UnmarshalMap(out.Attributes, &account); err != nil {
		return nil, fmt.Errorf("dynamodb update: decode item: %w", err)
	}
	if account.Data.Orders == nil {
		return []types.Order{}, nil
	}
	return account.Data.Orders, nil
}

// touch adds the bookkeeping every mutation carries.
func (s *DynamoAccountStore) touch(update expression.UpdateBuilder) expression.UpdateBuilder {
	return update.
		Set(expression.Name(attrUpdatedAt), expression.Value(s.now())).
		Add(expression.Name(attrVersion), expression.Value(1))
}

func (s *DynamoAccountStore) update(ctx context.Context, key Key, update expression.UpdateBuilder, returnValues ddbtypes.ReturnValue) (*dynamodb.UpdateItemOutput, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name(attrTenantID))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("dynamodb update: %w", err)
	}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       dynamoKey(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              returnValues,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dynamodb update: %w", err)
	}
	return out, nil
}

func (s *DynamoAccountStore) marshalNew(account types.Account, created bool) (map[string]ddbtypes.AttributeValue, error) {
	if err := KeyOf(account).validate(); err != nil {
		return nil, err
	}

	now := s.now()
	if created || account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	item, err := attributevalue.MarshalMap(normalize(account))
	if err != nil {
		return nil, fmt.Errorf("dynamodb encode item: %w", err)
	}
	return item, nil
}

func dynamoKey(key Key) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		attrTenantID: &ddbtypes.AttributeValueMemberS{Value: key.TenantID},
		attrUserID:   &ddbtypes.AttributeValueMemberS{Value: key.UserID},
	}
}

func isConditionFailed(err error) bool {
	var ccf *ddbtypes.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
