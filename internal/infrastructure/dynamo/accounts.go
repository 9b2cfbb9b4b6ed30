package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-recovery-api/internal/application/verification"
	"github.com/go-recovery-api/internal/domain"
)

// AccountRepo reads accounts and applies credential and confirmation changes.
// PK: account_id; GSIs: username-index, email-index
type AccountRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewAccountRepo(client API, tableName string, now func() time.Time) *AccountRepo {
	if now == nil {
		now = time.Now
	}
	return &AccountRepo{client: client, tableName: tableName, now: now}
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldAccountID, accountID),
	})
	if err != nil {
		return nil, accountStoreErr("get", err)
	}
	if out.Item == nil {
		return nil, domain.ErrAccountNotFound
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &a, nil
}

// FindByIdentifier tries the username index first, then the email index.
// Emails are stored lower-cased.
func (r *AccountRepo) FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	a, err := r.queryGSI(ctx, indexUsername, fieldUsername, identifier)
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return a, err
	}
	if !strings.Contains(identifier, "@") {
		return nil, err
	}
	return r.queryGSI(ctx, indexEmail, fieldEmail, strings.ToLower(identifier))
}

func (r *AccountRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.Account, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, accountStoreErr("query "+index, err)
	}
	if len(out.Items) == 0 {
		return nil, domain.ErrAccountNotFound
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Items[0], &a); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) Begin(context.Context) verification.AccountTx {
	return &accountTx{repo: r, staged: make(map[string]*stagedUpdate)}
}

func (r *AccountRepo) Ping(ctx context.Context) error {
	return describe(ctx, r.client, r.tableName, accountStoreErr)
}

// stagedUpdate merges every change for one account, since a transaction may
// touch each item only once.
type stagedUpdate struct {
	set          map[string]interface{}
	clearLockout bool
}

type accountTx struct {
	repo   *AccountRepo
	order  []string
	staged map[string]*stagedUpdate
}

func (tx *accountTx) stage(accountID string) *stagedUpdate {
	u, ok := tx.staged[accountID]
	if !ok {
		u = &stagedUpdate{set: make(map[string]interface{})}
		tx.staged[accountID] = u
		tx.order = append(tx.order, accountID)
	}
	return u
}

func (tx *accountTx) UpdateCredential(accountID string, change domain.CredentialChange) {
	u := tx.stage(accountID)
	u.set[fieldPasswordHash] = change.PasswordHash
	u.set[fieldPasswordHist] = change.PasswordHistory
	u.set[fieldFailedAttempts] = 0
	u.clearLockout = true
}

func (tx *accountTx) MarkChannelConfirmed(accountID string, ch domain.Channel) {
	u := tx.stage(accountID)
	switch ch {
	case domain.ChannelEmail:
		u.set[fieldEmailConfirmed] = true
	case domain.ChannelSMS:
		u.set[fieldPhoneConfirmed] = true
	}
}

// Commit writes all staged updates in one TransactWriteItems call. Each update
// is conditioned on the account existing.
func (tx *accountTx) Commit(ctx context.Context) error {
	if len(tx.order) == 0 {
		return nil
	}
	now := tx.repo.now().UTC()
	items := make([]types.TransactWriteItem, 0, len(tx.order))
	for _, id := range tx.order {
		u := tx.staged[id]
		u.set[fieldUpdatedAt] = now
		ue, err := buildUpdateExpr(u.set)
		if err != nil {
			return err
		}
		expr := ue.Expr
		if u.clearLockout {
			ue.Names["#lu"] = fieldLockedUntil
			expr += " REMOVE #lu"
		}
		ue.Names["#pk"] = fieldAccountID
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(tx.repo.tableName),
				Key:                       strKey(fieldAccountID, id),
				UpdateExpression:          aws.String(expr),
				ConditionExpression:       aws.String("attribute_exists(#pk)"),
				ExpressionAttributeNames:  ue.Names,
				ExpressionAttributeValues: ue.Values,
			},
		})
	}
	_, err := tx.repo.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && hasConditionFailure(tce) {
			return fmt.Errorf("commit account changes: %w", domain.ErrAccountNotFound)
		}
		return accountStoreErr("commit", err)
	}
	tx.order = nil
	tx.staged = make(map[string]*stagedUpdate)
	return nil
}

func hasConditionFailure(tce *types.TransactionCanceledException) bool {
	for _, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
