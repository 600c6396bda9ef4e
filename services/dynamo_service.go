package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"groupswipe/logging"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoService is the DynamoDB-backed Store. All records live in one table.
type DynamoService struct {
	Client DynamoAPI
	Table  string
}

// LoadAWSConfig loads the shared AWS configuration for region.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// InitializeDynamoDBClient initializes the DynamoDB client. A non-empty
// endpoint points it at DynamoDB Local or another compatible server.
func InitializeDynamoDBClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// GetItem retrieves an item with a strongly consistent read
func (ds *DynamoService) GetItem(ctx context.Context, key Key) (Item, error) {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ds.Table),
		Key:            key.attributes(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from table '%s': %w", ds.Table, err)
	}
	if output.Item == nil {
		return nil, ErrNotFound
	}
	return output.Item, nil
}

func (ds *DynamoService) PutItem(ctx context.Context, item Item, cond Condition) error {
	expr := newExpression()
	expr.condition(cond)

	_, err := ds.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(ds.Table),
		Item:                     item,
		ConditionExpression:      expr.conditionExpr(),
		ExpressionAttributeNames: expr.namesOrNil(),
	})
	if err != nil {
		return storeError(fmt.Sprintf("failed to put item in table '%s'", ds.Table), err)
	}
	return nil
}

// UpdateItem applies upd and returns every attribute of the updated record.
func (ds *DynamoService) UpdateItem(ctx context.Context, key Key, upd Update) (Item, error) {
	if len(upd.Set) == 0 && len(upd.Add) == 0 {
		return nil, fmt.Errorf("update failed: %w: nothing to update", ErrInvalidInput)
	}
	expr := newExpression()
	updateExpr := expr.update(upd)
	expr.condition(upd.Condition)
	expr.expect(upd.Expect)

	logging.Debug().Str("pk", key.PK).Str("sk", key.SK).Str("update", updateExpr).Msg("Updating item")

	output, err := ds.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(ds.Table),
		Key:                       key.attributes(),
		UpdateExpression:          aws.String(updateExpr),
		ConditionExpression:       expr.conditionExpr(),
		ExpressionAttributeNames:  expr.namesOrNil(),
		ExpressionAttributeValues: expr.valuesOrNil(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, storeError(fmt.Sprintf("failed to update item in table '%s'", ds.Table), err)
	}
	if output.Attributes == nil {
		return Item{}, nil
	}
	return output.Attributes, nil
}

// QueryItems reads one partition. Without a limit every page is fetched.
func (ds *DynamoService) QueryItems(ctx context.Context, q Query) ([]Item, error) {
	expr := newExpression()
	keyCond := fmt.Sprintf("%s = %s", expr.name(AttrPK), expr.value(&types.AttributeValueMemberS{Value: q.PK}))
	if q.SKPrefix != "" {
		keyCond += fmt.Sprintf(" AND begins_with(%s, %s)", expr.name(AttrSK), expr.value(&types.AttributeValueMemberS{Value: q.SKPrefix}))
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(ds.Table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  expr.names,
		ExpressionAttributeValues: expr.values,
		ScanIndexForward:          aws.Bool(!q.Descending),
		ConsistentRead:            aws.Bool(true),
	}

	if q.Limit > 0 {
		input.Limit = aws.Int32(q.Limit)
		output, err := ds.Client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query table '%s': %w", ds.Table, err)
		}
		return output.Items, nil
	}

	var items []Item
	paginator := dynamodb.NewQueryPaginator(ds.Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query table '%s': %w", ds.Table, err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// DeleteItem removes an item from DynamoDB
func (ds *DynamoService) DeleteItem(ctx context.Context, key Key, cond Condition) error {
	expr := newExpression()
	expr.condition(cond)

	_, err := ds.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(ds.Table),
		Key:                      key.attributes(),
		ConditionExpression:      expr.conditionExpr(),
		ExpressionAttributeNames: expr.namesOrNil(),
	})
	if err != nil {
		return storeError(fmt.Sprintf("failed to delete item from table '%s'", ds.Table), err)
	}
	return nil
}

// TransactWrite runs ops as one TransactWriteItems call.
func (ds *DynamoService) TransactWrite(ctx context.Context, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > MaxTransactItems {
		return fmt.Errorf("transact write: %w: %d operations exceeds %d", ErrInvalidInput, len(ops), MaxTransactItems)
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		expr := newExpression()
		switch op.kind {
		case writePut:
			expr.condition(op.condition)
			items = append(items, types.TransactWriteItem{Put: &types.Put{
				TableName:                aws.String(ds.Table),
				Item:                     op.item,
				ConditionExpression:      expr.conditionExpr(),
				ExpressionAttributeNames: expr.namesOrNil(),
			}})
		case writeUpdate:
			updateExpr := expr.update(op.update)
			expr.condition(op.condition)
			expr.expect(op.update.Expect)
			items = append(items, types.TransactWriteItem{Update: &types.Update{
				TableName:                 aws.String(ds.Table),
				Key:                       op.key.attributes(),
				UpdateExpression:          aws.String(updateExpr),
				ConditionExpression:       expr.conditionExpr(),
				ExpressionAttributeNames:  expr.namesOrNil(),
				ExpressionAttributeValues: expr.valuesOrNil(),
			}})
		case writeDelete:
			expr.condition(op.condition)
			items = append(items, types.TransactWriteItem{Delete: &types.Delete{
				TableName:                aws.String(ds.Table),
				Key:                      op.key.attributes(),
				ConditionExpression:      expr.conditionExpr(),
				ExpressionAttributeNames: expr.namesOrNil(),
			}})
		}
	}

	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return storeError(fmt.Sprintf("failed to write transaction to table '%s'", ds.Table), err)
	}
	return nil
}

// storeError maps failed conditions to ErrConditionFailed and wraps the rest.
func storeError(msg string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%s: %w", msg, ErrConditionFailed)
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		conflict := false
		for _, reason := range tce.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed":
				return fmt.Errorf("%s: %w", msg, ErrConditionFailed)
			case "TransactionConflict":
				conflict = true
			}
		}
		if conflict {
			return fmt.Errorf("%s: %w", msg, ErrTransactionConflict)
		}
	}
	var tc *types.TransactionConflictException
	if errors.As(err, &tc) {
		return fmt.Errorf("%s: %w", msg, ErrTransactionConflict)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// expression accumulates placeholder names and values for one request.
type expression struct {
	names      map[string]string
	values     map[string]types.AttributeValue
	conditions []string
}

func newExpression() *expression {
	return &expression{names: map[string]string{}, values: map[string]types.AttributeValue{}}
}

func (e *expression) name(attr string) string {
	placeholder := fmt.Sprintf("#n%d", len(e.names))
	for p, a := range e.names {
		if a == attr {
			return p
		}
	}
	e.names[placeholder] = attr
	return placeholder
}

func (e *expression) value(v types.AttributeValue) string {
	placeholder := fmt.Sprintf(":v%d", len(e.values))
	e.values[placeholder] = v
	return placeholder
}

func (e *expression) update(upd Update) string {
	var clauses []string

	if len(upd.Set) > 0 {
		parts := make([]string, 0, len(upd.Set))
		for _, attr := range sortedKeys(upd.Set) {
			parts = append(parts, fmt.Sprintf("%s = %s", e.name(attr), e.value(upd.Set[attr])))
		}
		clauses = append(clauses, "SET "+strings.Join(parts, ", "))
	}
	if len(upd.Add) > 0 {
		parts := make([]string, 0, len(upd.Add))
		for _, attr := range sortedKeys(upd.Add) {
			n := &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", upd.Add[attr])}
			parts = append(parts, fmt.Sprintf("%s %s", e.name(attr), e.value(n)))
		}
		clauses = append(clauses, "ADD "+strings.Join(parts, ", "))
	}
	return strings.Join(clauses, " ")
}

func (e *expression) condition(cond Condition) {
	switch cond {
	case CondExists:
		e.conditions = append(e.conditions, fmt.Sprintf("attribute_exists(%s)", e.name(AttrPK)))
	case CondNotExists:
		e.conditions = append(e.conditions, fmt.Sprintf("attribute_not_exists(%s)", e.name(AttrPK)))
	}
}

func (e *expression) expect(expect map[string]types.AttributeValue) {
	for _, attr := range sortedKeys(expect) {
		e.conditions = append(e.conditions, fmt.Sprintf("%s = %s", e.name(attr), e.value(expect[attr])))
	}
}

func (e *expression) conditionExpr() *string {
	if len(e.conditions) == 0 {
		return nil
	}
	return aws.String(strings.Join(e.conditions, " AND "))
}

func (e *expression) namesOrNil() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expression) valuesOrNil() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
