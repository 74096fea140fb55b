// Package dynamodb backs storage.Store with Amazon DynamoDB, grounded
// in the original platform's backend/src/shared/dynamo.py wrapper
// around boto3's get_item/put_item/update_item/query/
// transact_write_items, following an interface-first design: one port,
// one concrete adapter per backend.
package dynamodb

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/crowdtask-platform/engine/common"
	"github.com/crowdtask-platform/engine/storage"
)

// Store adapts storage.Store onto a single DynamoDB client shared
// across every table the caller names in a PutSpec/UpdateSpec/
// QuerySpec — this module, like the original's single shared
// boto3.resource('dynamodb'), never binds to one table at construction.
type Store struct {
	api dynamodbiface.DynamoDBAPI
}

func New(sess *session.Session) *Store {
	return &Store{api: dynamodb.New(sess)}
}

func (s *Store) Get(ctx context.Context, table string, key storage.Item) (storage.Item, bool, error) {
	av, err := dynamodbattribute.MarshalMap(map[string]interface{}(key))
	if err != nil {
		return nil, false, common.Wrap(common.Fatal, err, "marshal get key failed")
	}
	out, err := s.api.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       av,
	})
	if err != nil {
		return nil, false, common.Wrap(common.TransientExternal, err, "dynamodb GetItem failed")
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	var item storage.Item
	if err := dynamodbattribute.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, common.Wrap(common.Fatal, err, "unmarshal get item failed")
	}
	return item, true, nil
}

func (s *Store) Put(ctx context.Context, spec storage.PutSpec) error {
	av, err := dynamodbattribute.MarshalMap(map[string]interface{}(spec.Item))
	if err != nil {
		return common.Wrap(common.Fatal, err, "marshal put item failed")
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(spec.Table),
		Item:      av,
	}
	applyPutCondition(input, spec.Condition)

	_, err = s.api.PutItemWithContext(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return &storage.ConditionFailedError{Table: spec.Table}
		}
		return common.Wrap(common.TransientExternal, err, "dynamodb PutItem failed")
	}
	return nil
}

func (s *Store) Update(ctx context.Context, spec storage.UpdateSpec) (storage.Item, error) {
	key, err := dynamodbattribute.MarshalMap(map[string]interface{}(spec.Key))
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "marshal update key failed")
	}

	expr, names, values, err := updateExpression(spec)
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "build update expression failed")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(spec.Table),
		Key:                       key,
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              aws.String(dynamodb.ReturnValueAllNew),
	}
	applyUpdateCondition(input, spec.Condition, names, values)

	out, err := s.api.UpdateItemWithContext(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, &storage.ConditionFailedError{Table: spec.Table}
		}
		return nil, common.Wrap(common.TransientExternal, err, "dynamodb UpdateItem failed")
	}

	var item storage.Item
	if err := dynamodbattribute.UnmarshalMap(out.Attributes, &item); err != nil {
		return nil, common.Wrap(common.Fatal, err, "unmarshal update result failed")
	}
	return item, nil
}

func (s *Store) Query(ctx context.Context, spec storage.QuerySpec) ([]storage.Item, error) {
	values, err := dynamodbattribute.MarshalMap(map[string]interface{}{":kv": spec.KeyValue})
	if err != nil {
		return nil, common.Wrap(common.Fatal, err, "marshal query key value failed")
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(spec.Table),
		KeyConditionExpression:    aws.String("#k = :kv"),
		ExpressionAttributeNames:  map[string]*string{"#k": aws.String(spec.KeyAttr)},
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(spec.ScanForward),
	}
	if spec.Index != "" {
		input.IndexName = aws.String(spec.Index)
	}
	if spec.Limit > 0 {
		// Over-fetch: spec.Filter runs client-side below, so a DynamoDB
		// page-level Limit could under-return once a filter narrows it.
		// Query still bounds API cost; filtering narrows it further.
		input.Limit = aws.Int64(int64(spec.Limit) * 4)
	}

	var out []storage.Item
	err = s.api.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		for _, av := range page.Items {
			var item storage.Item
			if err := dynamodbattribute.UnmarshalMap(av, &item); err != nil {
				continue
			}
			if spec.Filter != nil && !spec.Filter(item) {
				continue
			}
			out = append(out, item)
			if spec.Limit > 0 && len(out) >= spec.Limit {
				return false
			}
		}
		return spec.Limit <= 0 || len(out) < spec.Limit
	})
	if err != nil {
		return nil, common.Wrap(common.TransientExternal, err, "dynamodb Query failed")
	}
	return out, nil
}

func (s *Store) TransactWrite(ctx context.Context, items []storage.TxItem) error {
	txItems := make([]*dynamodb.TransactWriteItem, 0, len(items))
	for _, txi := range items {
		switch {
		case txi.Put != nil:
			av, err := dynamodbattribute.MarshalMap(map[string]interface{}(txi.Put.Item))
			if err != nil {
				return common.Wrap(common.Fatal, err, "marshal transact put item failed")
			}
			put := &dynamodb.Put{TableName: aws.String(txi.Put.Table), Item: av}
			if cond := txi.Put.Condition; cond != nil {
				expr, names, values := conditionExpression(cond)
				put.ConditionExpression = aws.String(expr)
				put.ExpressionAttributeNames = names
				put.ExpressionAttributeValues = values
			}
			txItems = append(txItems, &dynamodb.TransactWriteItem{Put: put})

		case txi.Update != nil:
			key, err := dynamodbattribute.MarshalMap(map[string]interface{}(txi.Update.Key))
			if err != nil {
				return common.Wrap(common.Fatal, err, "marshal transact update key failed")
			}
			expr, names, values, err := updateExpression(*txi.Update)
			if err != nil {
				return common.Wrap(common.Fatal, err, "build transact update expression failed")
			}
			update := &dynamodb.Update{
				TableName:                 aws.String(txi.Update.Table),
				Key:                       key,
				UpdateExpression:          aws.String(expr),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			}
			if cond := txi.Update.Condition; cond != nil {
				condExpr, condNames, condValues := conditionExpression(cond)
				update.ConditionExpression = aws.String(condExpr)
				for k, v := range condNames {
					names[k] = v
				}
				for k, v := range condValues {
					values[k] = v
				}
				update.ExpressionAttributeNames = names
				update.ExpressionAttributeValues = values
			}
			txItems = append(txItems, &dynamodb.TransactWriteItem{Update: update})
		}
	}

	_, err := s.api.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: txItems,
	})
	if err != nil {
		if idx, ok := transactionCanceledIndex(err); ok {
			return &storage.ConditionFailedError{Index: idx}
		}
		return common.Wrap(common.Fatal, err, "dynamodb TransactWriteItems failed")
	}
	return nil
}

var _ storage.Store = (*Store)(nil)

func applyPutCondition(input *dynamodb.PutItemInput, cond *storage.Condition) {
	if cond == nil {
		return
	}
	expr, names, values := conditionExpression(cond)
	input.ConditionExpression = aws.String(expr)
	input.ExpressionAttributeNames = names
	input.ExpressionAttributeValues = values
}

func applyUpdateCondition(input *dynamodb.UpdateItemInput, cond *storage.Condition, names map[string]*string, values map[string]*dynamodb.AttributeValue) {
	if cond == nil {
		return
	}
	expr, condNames, condValues := conditionExpression(cond)
	input.ConditionExpression = aws.String(expr)
	for k, v := range condNames {
		names[k] = v
	}
	for k, v := range condValues {
		values[k] = v
	}
}

// conditionExpression renders storage.Condition into a DynamoDB
// ConditionExpression, with attribute name/value placeholders
// namespaced under "c" so a condition never collides with an Update's
// Set/Add placeholders in the same request.
func conditionExpression(cond *storage.Condition) (expr string, names map[string]*string, values map[string]*dynamodb.AttributeValue) {
	names = map[string]*string{"#c": aws.String(cond.Attr)}
	switch cond.Op {
	case storage.OpExists:
		return "attribute_exists(#c)", names, map[string]*dynamodb.AttributeValue{}
	case storage.OpNotExists:
		return "attribute_not_exists(#c)", names, map[string]*dynamodb.AttributeValue{}
	}
	av, _ := dynamodbattribute.Marshal(cond.Value)
	values = map[string]*dynamodb.AttributeValue{":cval": av}
	switch cond.Op {
	case storage.OpEq:
		return "#c = :cval", names, values
	case storage.OpNotEq:
		return "#c <> :cval", names, values
	case storage.OpGte:
		return "#c >= :cval", names, values
	case storage.OpLte:
		return "#c <= :cval", names, values
	}
	return "#c = :cval", names, values
}

// updateExpression renders an UpdateSpec's Set/Add maps into a single
// DynamoDB UpdateExpression, namespacing placeholders as #sN/:sN for
// Set and #aN/:aN for Add so the two never collide.
func updateExpression(spec storage.UpdateSpec) (expr string, names map[string]*string, values map[string]*dynamodb.AttributeValue, err error) {
	names = map[string]*string{}
	values = map[string]*dynamodb.AttributeValue{}

	var setClauses, addClauses []string
	i := 0
	for attr, v := range spec.Set {
		nameKey := "#s" + strconv.Itoa(i)
		valueKey := ":s" + strconv.Itoa(i)
		names[nameKey] = aws.String(attr)
		if v == nil {
			setClauses = append(setClauses, nameKey+" = :null"+strconv.Itoa(i))
			values[":null"+strconv.Itoa(i)] = &dynamodb.AttributeValue{NULL: aws.Bool(true)}
		} else {
			av, marshalErr := dynamodbattribute.Marshal(v)
			if marshalErr != nil {
				return "", nil, nil, marshalErr
			}
			setClauses = append(setClauses, nameKey+" = "+valueKey)
			values[valueKey] = av
		}
		i++
	}

	j := 0
	for attr, v := range spec.Add {
		nameKey := "#a" + strconv.Itoa(j)
		valueKey := ":a" + strconv.Itoa(j)
		names[nameKey] = aws.String(attr)
		av, marshalErr := dynamodbattribute.Marshal(v)
		if marshalErr != nil {
			return "", nil, nil, marshalErr
		}
		values[valueKey] = av
		addClauses = append(addClauses, nameKey+" "+valueKey)
		j++
	}

	switch {
	case len(setClauses) > 0 && len(addClauses) > 0:
		expr = "SET " + joinClauses(setClauses) + " ADD " + joinClauses(addClauses)
	case len(setClauses) > 0:
		expr = "SET " + joinClauses(setClauses)
	case len(addClauses) > 0:
		expr = "ADD " + joinClauses(addClauses)
	}
	return expr, names, values, nil
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += ", " + c
	}
	return out
}

func isConditionalCheckFailed(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		return aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
	}
	return false
}

// transactionCanceledIndex extracts the first failed item's index out
// of a TransactionCanceledException's per-item cancellation reasons.
func transactionCanceledIndex(err error) (int, bool) {
	tce, ok := err.(*dynamodb.TransactionCanceledException)
	if !ok {
		return 0, false
	}
	for i, reason := range tce.CancellationReasons {
		if reason != nil && reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return i, true
		}
	}
	return 0, true
}
