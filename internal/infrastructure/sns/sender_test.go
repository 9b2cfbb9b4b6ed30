package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestSendSMS_PublishesTransactional(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		attr, ok := in.MessageAttributes["AWS.SNS.SMS.SMSType"]
		return aws.ToString(in.PhoneNumber) == "+15550100" &&
			aws.ToString(in.Message) == "code 483920" &&
			ok && aws.ToString(attr.StringValue) == "Transactional"
	})).Return(&sns.PublishOutput{}, nil)

	s := &sender{client: p}
	assert.NoError(t, s.SendSMS(context.Background(), "+15550100", "code 483920"))
	p.AssertExpectations(t)
}

func TestSendSMS_WrapsError(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	s := &sender{client: p}
	assert.ErrorContains(t, s.SendSMS(context.Background(), "+15550100", "x"), "sns publish: throttled")
}
