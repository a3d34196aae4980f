// Package dynamo provides a DynamoDB datastore adapter. Every document is one
// item in a single table, keyed PK = SK = "<collection>#<id>".
package dynamo

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/errors"
)

// AdapterName is the name the adapter registers under.
const AdapterName = "dynamodb"

// Key attributes added to every item and stripped from documents.
const (
	attrPK         = "PK"
	attrSK         = "SK"
	attrCollection = "_collection"
)

func init() {
	datastore.Register(AdapterName, func(ctx context.Context, cfg datastore.ConnectionConfig) (datastore.Adapter, error) {
		client, err := NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return New(client, cfg.Table)
	})
}

// Client is the subset of the DynamoDB API the adapter uses.
type Client interface {
	GetItem(ctx context.Context, params *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	PutItem(ctx context.Context, params *sdk.PutItemInput, optFns ...func(*sdk.Options)) (*sdk.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *sdk.UpdateItemInput, optFns ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error)
}

// NewClient builds a DynamoDB client from a connection config. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies.
func NewClient(ctx context.Context, cfg datastore.ConnectionConfig) (*sdk.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.NewAdapterError(AdapterName, "load aws config", "", err)
	}

	return sdk.NewFromConfig(awsCfg, func(o *sdk.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Store is a DynamoDB backed datastore.Adapter.
type Store struct {
	client Client
	table  string
}

// New creates a store over an existing client.
func New(client Client, table string) (*Store, error) {
	if client == nil {
		return nil, errors.NewConfigError(AdapterName, "client is required", nil)
	}
	if table == "" {
		return nil, errors.NewConfigError(AdapterName, "table is required", nil)
	}
	return &Store{client: client, table: table}, nil
}

// Name implements datastore.Adapter.
func (s *Store) Name() string { return AdapterName }

// Find implements datastore.Adapter.
func (s *Store) Find(ctx context.Context, collection, id string) (map[string]any, error) {
	out, err := s.client.GetItem(ctx, &sdk.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.NewAdapterError(AdapterName, "find", collection, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	return decodeItem(out.Item)
}

// Update implements datastore.Adapter. The item must already exist; the
// condition keeps UpdateItem from creating it.
func (s *Store) Update(ctx context.Context, collection, id string, values map[string]any) ([]map[string]any, error) {
	fields := make(map[string]any, len(values))
	for k, v := range values {
		if k == datastore.IDField || k == attrPK || k == attrSK || k == attrCollection {
			continue
		}
		fields[k] = v
	}

	if len(fields) == 0 {
		doc, err := s.Find(ctx, collection, id)
		if err != nil || doc == nil {
			return []map[string]any{}, err
		}
		return []map[string]any{doc}, nil
	}

	expr, names, vals, err := buildUpdateExpression(fields)
	if err != nil {
		return nil, errors.NewAdapterError(AdapterName, "update", collection, err)
	}

	out, err := s.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       itemKey(collection, id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(" + attrPK + ")"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: vals,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if stderrors.As(err, &cfe) {
			return []map[string]any{}, nil
		}
		return nil, errors.NewAdapterError(AdapterName, "update", collection, err)
	}

	doc, err := decodeItem(out.Attributes)
	if err != nil {
		return nil, err
	}
	return []map[string]any{doc}, nil
}

// Create implements datastore.Adapter.
func (s *Store) Create(ctx context.Context, collection string, values map[string]any) (map[string]any, error) {
	doc, key := datastore.PrepareCreate(values)

	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, errors.NewAdapterError(AdapterName, "create", collection, err)
	}
	for k, v := range itemKey(collection, key) {
		item[k] = v
	}
	item[attrCollection] = &types.AttributeValueMemberS{Value: collection}

	_, err = s.client.PutItem(ctx, &sdk.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(" + attrPK + ")"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if stderrors.As(err, &cfe) {
			return nil, errors.NewAlreadyExistsError(collection, key)
		}
		return nil, errors.NewAdapterError(AdapterName, "create", collection, err)
	}
	return decodeItem(item)
}

// Close implements datastore.Adapter. The SDK client holds no resources.
func (s *Store) Close() error { return nil }

func itemKey(collection, id string) map[string]types.AttributeValue {
	key := collection + "#" + id
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: key},
		attrSK: &types.AttributeValueMemberS{Value: key},
	}
}

func decodeItem(item map[string]types.AttributeValue) (map[string]any, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, errors.NewAdapterError(AdapterName, "decode", "", err)
	}
	delete(doc, attrPK)
	delete(doc, attrSK)
	delete(doc, attrCollection)
	return doc, nil
}

// buildUpdateExpression renders a SET expression with placeholder names and
// values. Fields are sorted so the expression is stable.
func buildUpdateExpression(fields map[string]any) (string, map[string]string, map[string]types.AttributeValue, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make(map[string]string, len(keys))
	vals := make(map[string]types.AttributeValue, len(keys))
	expr := "SET "
	for i, field := range keys {
		name := fmt.Sprintf("#f%d", i)
		value := fmt.Sprintf(":v%d", i)

		av, err := attributevalue.Marshal(fields[field])
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal field %s: %w", field, err)
		}
		if i > 0 {
			expr += ", "
		}
		expr += name + " = " + value
		names[name] = field
		vals[value] = av
	}
	return expr, names, vals, nil
}
