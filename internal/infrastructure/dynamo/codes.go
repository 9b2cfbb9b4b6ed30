package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-recovery-api/internal/domain"
)

// attemptsPrefix namespaces attempt counter items inside the codes table.
const attemptsPrefix = "attempts#"

// codeItem is the stored shape of a verification code. expires_at doubles as
// the table's TTL attribute, so it is kept in Unix seconds.
type codeItem struct {
	domain.VerificationCode
	ExpiresAtUnix int64 `dynamodbav:"expires_at"`
}

// CodeRepo stores verification codes in a single-key table with native TTL.
// PK: code_key
type CodeRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewCodeRepo(client API, tableName string, now func() time.Time) *CodeRepo {
	if now == nil {
		now = time.Now
	}
	return &CodeRepo{client: client, tableName: tableName, now: now}
}

func (r *CodeRepo) Put(ctx context.Context, key string, code *domain.VerificationCode, ttl time.Duration) error {
	item, err := r.marshal(key, code, ttl)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return codeStoreErr("put", err)
	}
	return nil
}

// PutIfAbsent also overwrites an item that expired but has not been swept yet.
func (r *CodeRepo) PutIfAbsent(ctx context.Context, key string, code *domain.VerificationCode, ttl time.Duration) (bool, error) {
	item, err := r.marshal(key, code, ttl)
	if err != nil {
		return false, err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#k) OR #e <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#k": fieldCodeKey,
			"#e": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": unixValue(r.now()),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, codeStoreErr("put if absent", err)
	}
	return true, nil
}

func (r *CodeRepo) marshal(key string, code *domain.VerificationCode, ttl time.Duration) (map[string]types.AttributeValue, error) {
	it := codeItem{VerificationCode: *code, ExpiresAtUnix: r.now().Add(ttl).Unix()}
	it.Key = key
	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("marshal code: %w", err)
	}
	return item, nil
}

// Get filters on expires_at because DynamoDB sweeps expired items lazily.
func (r *CodeRepo) Get(ctx context.Context, key string) (*domain.VerificationCode, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldCodeKey, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, codeStoreErr("get", err)
	}
	if out.Item == nil {
		return nil, domain.ErrCodeNotFound
	}
	var it codeItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal code: %w", err)
	}
	if it.ExpiresAtUnix <= r.now().Unix() {
		return nil, domain.ErrCodeNotFound
	}
	code := it.VerificationCode
	code.ExpiresAt = time.Unix(it.ExpiresAtUnix, 0).UTC()
	return &code, nil
}

func (r *CodeRepo) RemoveIfEquals(ctx context.Context, key, expected string) (bool, error) {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldCodeKey, key),
		ConditionExpression: aws.String("#c = :c AND #e > :now"),
		ExpressionAttributeNames: map[string]string{
			"#c": fieldCode,
			"#e": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberS{Value: expected},
			":now": unixValue(r.now()),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, codeStoreErr("remove if equals", err)
	}
	return true, nil
}

func (r *CodeRepo) Remove(ctx context.Context, key string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldCodeKey, key),
	})
	if err != nil {
		return codeStoreErr("remove", err)
	}
	return nil
}

// Increment adds one failed attempt. A counter whose window elapsed is
// restarted at one.
func (r *CodeRepo) Increment(ctx context.Context, key string, ttl time.Duration) (int, error) {
	now := r.now()
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldCodeKey, attemptsPrefix+key),
		UpdateExpression:    aws.String("SET #e = if_not_exists(#e, :exp) ADD #a :one"),
		ConditionExpression: aws.String("attribute_not_exists(#e) OR #e > :now"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
			"#e": fieldExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":exp": unixValue(now.Add(ttl)),
			":now": unixValue(now),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return r.restartAttempts(ctx, key, now.Add(ttl))
	}
	if err != nil {
		return 0, codeStoreErr("count attempt", err)
	}
	var counted struct {
		Attempts int `dynamodbav:"attempts"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counted); err != nil {
		return 0, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return counted.Attempts, nil
}

func (r *CodeRepo) restartAttempts(ctx context.Context, key string, expiresAt time.Time) (int, error) {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			fieldCodeKey:   &types.AttributeValueMemberS{Value: attemptsPrefix + key},
			fieldAttempts:  &types.AttributeValueMemberN{Value: "1"},
			fieldExpiresAt: unixValue(expiresAt),
		},
	})
	if err != nil {
		return 0, codeStoreErr("count attempt", err)
	}
	return 1, nil
}

func (r *CodeRepo) Reset(ctx context.Context, key string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldCodeKey, attemptsPrefix+key),
	})
	if err != nil {
		return codeStoreErr("reset attempts", err)
	}
	return nil
}

func (r *CodeRepo) Ping(ctx context.Context) error {
	return describe(ctx, r.client, r.tableName, codeStoreErr)
}

func unixValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}

func describe(ctx context.Context, client API, table string, wrap func(string, error) error) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		return wrap("describe "+table, err)
	}
	return nil
}
