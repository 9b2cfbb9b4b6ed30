package s3infra

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-recovery-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGetter struct{ mock.Mock }

func (m *mockGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func TestFetch_ReturnsBody(t *testing.T) {
	g := &mockGetter{}
	g.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Bucket) == "templates" && aws.ToString(in.Key) == "password-recovery.html"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("<p>{{.Code}}</p>"))}, nil)

	body, err := NewTemplateStore(g, "templates").Fetch(context.Background(), "password-recovery.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>{{.Code}}</p>", body)
}

func TestFetch_MissingKeyIsNotFound(t *testing.T) {
	g := &mockGetter{}
	g.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{})

	_, err := NewTemplateStore(g, "templates").Fetch(context.Background(), "identity-confirmation.html")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetch_OtherErrors(t *testing.T) {
	g := &mockGetter{}
	g.On("GetObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := NewTemplateStore(g, "templates").Fetch(context.Background(), "x.html")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
