package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndMessageOf(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
		policy  bool
	}{
		{"policy", New(ErrBidTooLow, "Bid too low."), ErrBidTooLow, "Bid too low.", true},
		{"wrapped policy", fmt.Errorf("place bid: %w", New(ErrAuctionClosed, "Closed.")), ErrAuctionClosed, "Closed.", true},
		{"auth", New(ErrForbidden, "No."), ErrForbidden, "No.", false},
		{"internal", Internal(ErrConflict), ErrInternalServer, "Internal server error", false},
		{"plain", fmt.Errorf("boom"), ErrInternalServer, "Internal server error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			assert.Equal(t, tt.message, MessageOf(tt.err))
			assert.Equal(t, tt.policy, IsPolicy(tt.err))
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	err := Wrap(ErrRecordNotFound, "lookup failed")
	assert.True(t, Is(err, ErrRecordNotFound))
	assert.Equal(t, "lookup failed: not found", err.Error())
	assert.Equal(t, "Closed.", New(ErrAuctionClosed, "Closed.").Error())
}
