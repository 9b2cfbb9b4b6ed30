package dynamo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-recovery-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAccountRepo() (*AccountRepo, *mockAPI) {
	api := &mockAPI{}
	return NewAccountRepo(api, "accounts", func() time.Time { return fixedNow }), api
}

func accountItem(t *testing.T, a domain.Account) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(a)
	require.NoError(t, err)
	return item
}

func byIndex(index string) interface{} {
	return mock.MatchedBy(func(in *dynamodb.QueryInput) bool { return aws.ToString(in.IndexName) == index })
}

func TestAccountRepo_FindByUsername(t *testing.T) {
	r, api := newAccountRepo()
	api.On("Query", mock.Anything, byIndex(indexUsername)).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{accountItem(t, domain.Account{AccountID: "u1", Username: "alice"})},
	}, nil)

	a, err := r.FindByIdentifier(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", a.AccountID)
	api.AssertNotCalled(t, "Query", mock.Anything, byIndex(indexEmail))
}

func TestAccountRepo_FindFallsBackToLowercasedEmail(t *testing.T) {
	r, api := newAccountRepo()
	api.On("Query", mock.Anything, byIndex(indexUsername)).Return(&dynamodb.QueryOutput{}, nil)
	api.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		v, _ := in.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberS)
		return aws.ToString(in.IndexName) == indexEmail && v != nil && v.Value == "alice@example.com"
	})).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{accountItem(t, domain.Account{AccountID: "u1", Email: "alice@example.com"})},
	}, nil)

	a, err := r.FindByIdentifier(context.Background(), "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", a.AccountID)
}

func TestAccountRepo_FindUnknown(t *testing.T) {
	r, api := newAccountRepo()
	api.On("Query", mock.Anything, byIndex(indexUsername)).Return(&dynamodb.QueryOutput{}, nil)

	_, err := r.FindByIdentifier(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountRepo_FindBackendFailure(t *testing.T) {
	r, api := newAccountRepo()
	api.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := r.FindByIdentifier(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrAccountStoreUnavailable)
}

func TestAccountRepo_GetMissing(t *testing.T) {
	r, api := newAccountRepo()
	api.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	_, err := r.Get(context.Background(), "u9")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountTx_CommitMergesUpdatesPerAccount(t *testing.T) {
	r, api := newAccountRepo()
	api.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		if len(in.TransactItems) != 1 {
			return false
		}
		u := in.TransactItems[0].Update
		expr := aws.ToString(u.UpdateExpression)
		names := make([]string, 0, len(u.ExpressionAttributeNames))
		for _, n := range u.ExpressionAttributeNames {
			names = append(names, n)
		}
		sort.Strings(names)
		return strings.HasSuffix(expr, " REMOVE #lu") &&
			aws.ToString(u.ConditionExpression) == "attribute_exists(#pk)" &&
			assert.ObjectsAreEqual([]string{
				fieldAccountID, fieldEmailConfirmed, fieldFailedAttempts, fieldLockedUntil,
				fieldPasswordHash, fieldPasswordHist, fieldUpdatedAt,
			}, names)
	})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

	tx := r.Begin(context.Background())
	tx.UpdateCredential("u1", domain.CredentialChange{PasswordHash: "h", PasswordHistory: []string{"old"}})
	tx.MarkChannelConfirmed("u1", domain.ChannelEmail)
	require.NoError(t, tx.Commit(context.Background()))
	api.AssertExpectations(t)
}

func TestAccountTx_CommitMissingAccount(t *testing.T) {
	r, api := newAccountRepo()
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, &types.TransactionCanceledException{
		Message:             aws.String("cancelled"),
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
	})

	tx := r.Begin(context.Background())
	tx.MarkChannelConfirmed("u9", domain.ChannelSMS)
	assert.ErrorIs(t, tx.Commit(context.Background()), domain.ErrAccountNotFound)
}

func TestAccountTx_CommitBackendFailure(t *testing.T) {
	r, api := newAccountRepo()
	api.On("TransactWriteItems", mock.Anything, mock.Anything).Return(nil, errors.New("internal server error"))

	tx := r.Begin(context.Background())
	tx.UpdateCredential("u1", domain.CredentialChange{PasswordHash: "h"})
	err := tx.Commit(context.Background())
	assert.ErrorIs(t, err, domain.ErrAccountStoreUnavailable)
	assert.True(t, domain.IsTransient(err))
}

func TestAccountTx_EmptyCommitIsNoop(t *testing.T) {
	r, api := newAccountRepo()
	require.NoError(t, r.Begin(context.Background()).Commit(context.Background()))
	api.AssertNotCalled(t, "TransactWriteItems", mock.Anything, mock.Anything)
}
