package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Webhook.Deliver", ErrDeliveryFailed, "status 503")
	assert.Equal(t, "Webhook.Deliver: status 503: webhook delivery failed", err.Error())

	bare := NewDomainError("Backup.Run", ErrBackupFailed, "")
	assert.Equal(t, "Backup.Run: backup failed", bare.Error())
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewSubSystemError("hooks", "Deliver", ErrDeliveryFailed, "")
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, "hooks", err.SubSystem)
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))

	wrapped := WrapOp("store.get", ErrWebhookNotFound)
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, ErrWebhookNotFound)
	assert.Contains(t, wrapped.Error(), "store.get")
}

func TestErrorCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeUnknown},
		{errors.New("random"), CodeUnknown},
		{ErrWebhookNotFound, CodeWebhookNotFound},
		{ErrDeliveryFailed, CodeDeliveryFailed},
		{ErrChannelCircuitOn, CodeChannelCircuit},
		{fmt.Errorf("wrapped: %w", ErrBackupFailed), CodeBackupFailed},
		{NewDomainError("op", ErrTimeout, ""), CodeTimeout},
		{WrapOp("op", NewDomainError("inner", ErrInvalidInput, "")), CodeInvalidInput},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ErrorCodeOf(c.err), "err=%v", c.err)
	}
}

func TestGatewayAuthIsAuthInvalid(t *testing.T) {
	// Gateway auth failures count as authentication errors for callers
	// matching the broad category.
	assert.ErrorIs(t, ErrGatewayAuth, ErrAuthInvalid)
	assert.Equal(t, CodeAuthInvalid, ErrorCodeOf(fmt.Errorf("x: %w", ErrAuthInvalid)))
}

func TestHookMatches(t *testing.T) {
	hook := Hook{
		EventTypes: []EventType{EventMessageReceived, EventAgentResponse},
		Enabled:    true,
	}
	assert.True(t, hook.Matches(EventMessageReceived))
	assert.False(t, hook.Matches(EventMessageSent))

	hook.Enabled = false
	assert.False(t, hook.Matches(EventMessageReceived))
}
