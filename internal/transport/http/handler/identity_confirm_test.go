package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-recovery-api/internal/application/identity"
	"github.com/go-recovery-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockIdentitySvc struct{ mock.Mock }

func (m *mockIdentitySvc) RequestConfirmation(ctx context.Context, req identity.ConfirmationRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockIdentitySvc) ConfirmIdentity(ctx context.Context, req identity.ConfirmRequest) error {
	return m.Called(ctx, req).Error(0)
}

func identityReq(t *testing.T, action string, v interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return withAction(httptest.NewRequest(http.MethodPost, "/v1/identity-confirmation/"+action, bytes.NewReader(body)), action)
}

func TestIdentityRequest_Accepted(t *testing.T) {
	svc := &mockIdentitySvc{}
	svc.On("RequestConfirmation", mock.Anything, identity.ConfirmationRequest{Username: "alice", Channel: "sms"}).Return(nil)
	h := NewIdentityConfirmHandler(svc)

	rr := httptest.NewRecorder()
	h.Action(rr, identityReq(t, "request", map[string]string{"username": "alice", "channel": "sms"}))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	svc.AssertExpectations(t)
}

func TestIdentityConfirm_Success(t *testing.T) {
	svc := &mockIdentitySvc{}
	svc.On("ConfirmIdentity", mock.Anything, identity.ConfirmRequest{Username: "alice", Channel: "email", Code: "483920"}).Return(nil)
	h := NewIdentityConfirmHandler(svc)

	rr := httptest.NewRecorder()
	h.Action(rr, identityReq(t, "confirm", map[string]string{"username": "alice", "channel": "email", "code": "483920"}))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestIdentityConfirm_MissingChannel(t *testing.T) {
	svc := &mockIdentitySvc{}
	h := NewIdentityConfirmHandler(svc)

	rr := httptest.NewRecorder()
	h.Action(rr, identityReq(t, "confirm", map[string]string{"username": "alice", "code": "483920"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	svc.AssertNotCalled(t, "ConfirmIdentity", mock.Anything, mock.Anything)
}

func TestIdentityConfirm_AccountStoreDown(t *testing.T) {
	svc := &mockIdentitySvc{}
	svc.On("ConfirmIdentity", mock.Anything, mock.Anything).Return(domain.ErrAccountStoreUnavailable)
	h := NewIdentityConfirmHandler(svc)

	rr := httptest.NewRecorder()
	h.Action(rr, identityReq(t, "confirm", map[string]string{"username": "alice", "channel": "email", "code": "483920"}))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
