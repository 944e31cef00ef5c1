package docstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by Dynamo.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Dynamo stores documents in DynamoDB tables.
type Dynamo struct {
	client DynamoAPI
}

func NewDynamo(client DynamoAPI) *Dynamo {
	return &Dynamo{client: client}
}

func (d *Dynamo) Put(ctx context.Context, table string, item Item) error {
	av, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put item into %s: %w", table, err)
	}
	return nil
}

// Update builds a SET expression over attrs. Attribute names go through
// placeholders so reserved words like "name" or "type" are safe.
func (d *Dynamo) Update(ctx context.Context, table string, key Item, attrs Item) error {
	keyAV, err := attributevalue.MarshalMap(map[string]any(key))
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	in := &dynamodb.UpdateItemInput{
		TableName: aws.String(table),
		Key:       keyAV,
	}

	if len(attrs) > 0 {
		var update expression.UpdateBuilder
		first := true
		for name, v := range attrs {
			if first {
				update = expression.Set(expression.NameNoDotSplit(name), expression.Value(v))
				first = false
				continue
			}
			update = update.Set(expression.NameNoDotSplit(name), expression.Value(v))
		}
		expr, err := expression.NewBuilder().WithUpdate(update).Build()
		if err != nil {
			return fmt.Errorf("build update expression: %w", err)
		}
		in.UpdateExpression = expr.Update()
		in.ExpressionAttributeNames = expr.Names()
		in.ExpressionAttributeValues = expr.Values()
	}

	if _, err := d.client.UpdateItem(ctx, in); err != nil {
		return fmt.Errorf("update item in %s: %w", table, err)
	}
	return nil
}

func (d *Dynamo) QueryPartition(ctx context.Context, table, attr string, value any) ([]Item, error) {
	keyCond := expression.Key(attr).Equal(expression.Value(value))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var out []Item
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		items, err := unmarshalItems(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (d *Dynamo) Delete(ctx context.Context, table string, key Item) error {
	keyAV, err := attributevalue.MarshalMap(map[string]any(key))
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	_, err = d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       keyAV,
	})
	if err != nil {
		return fmt.Errorf("delete item from %s: %w", table, err)
	}
	return nil
}

func (d *Dynamo) Scan(ctx context.Context, table string) ([]Item, error) {
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(table),
	})
	var out []Item
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		items, err := unmarshalItems(page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// VerifyKeySchema checks that table is keyed the way schema declares.
func (d *Dynamo) VerifyKeySchema(ctx context.Context, table string, schema KeySchema) error {
	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", table, err)
	}
	if out.Table == nil {
		return fmt.Errorf("describe table %s: empty description", table)
	}

	var got KeySchema
	for _, k := range out.Table.KeySchema {
		switch k.KeyType {
		case types.KeyTypeHash:
			got.Partition = aws.ToString(k.AttributeName)
		case types.KeyTypeRange:
			got.Sort = aws.ToString(k.AttributeName)
		}
	}
	if got != schema {
		return fmt.Errorf("table %s is keyed by %+v, expected %+v", table, got, schema)
	}
	return nil
}

func unmarshalItems(raw []map[string]types.AttributeValue) ([]Item, error) {
	out := make([]Item, 0, len(raw))
	for _, av := range raw {
		var item map[string]any
		if err := attributevalue.UnmarshalMap(av, &item); err != nil {
			return nil, fmt.Errorf("unmarshal item: %w", err)
		}
		out = append(out, Item(item))
	}
	return out, nil
}
