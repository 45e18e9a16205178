package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tenantcart/apiserver/config"
)

const (
	tableActiveTimeout = 2 * time.Minute
	partitionKeyName   = "tenantID"
	sortKeyName        = "userID"
)

// OpenDynamoDB builds a DynamoDB client. Static credentials are used when both
// keys are configured; otherwise the default AWS credential chain applies.
// A positive timeout bounds every HTTP round trip to the service.
func OpenDynamoDB(ctx context.Context, cfg config.DynamoDBConfig, timeout time.Duration) (*dynamodb.Client, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("aws region is required")
	}
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, errors.New("dynamodb table name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if timeout > 0 {
		opts = append(opts, awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(timeout)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// EnsureTable creates the accounts table keyed by (tenantID, userID) unless it
// already exists, then waits for it to become active.
func EnsureTable(ctx context.Context, client *dynamodb.Client, tableName string) (bool, error) {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err == nil {
		return false, nil
	}
	var notFound *ddbtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, fmt.Errorf("describe table: %w", err)
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(partitionKeyName), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(sortKeyName), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(partitionKeyName), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(sortKeyName), KeyType: ddbtypes.KeyTypeRange},
		},
	})
	if err != nil {
		return false, fmt.Errorf("create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, tableActiveTimeout); err != nil {
		return true, fmt.Errorf("wait for table: %w", err)
	}
	return true, nil
}
