package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  &Error{Kind: KindTimeout},
			want: "timeout",
		},
		{
			name: "op and message",
			err:  New(KindInvalidResponse, "parse frame", "header 0x%02X", 0x11),
			want: "parse frame: invalid response: header 0x11",
		},
		{
			name: "wrapped cause",
			err:  Wrap(KindTransport, "write", errors.New("i2c nack")),
			want: "write: transport error: i2c nack",
		},
		{
			name: "breaker cooldown",
			err:  &Error{Kind: KindBreakerOpen, Op: "read inference", RetryAfter: 2 * time.Second},
			want: "read inference: circuit breaker open (retry after 2s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("read inference: %w", New(KindTimeout, "read message", "no data after 1s"))

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrShortRead)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestIsSeesWrappedCause(t *testing.T) {
	inner := New(KindTimeout, "read message", "no data")
	outer := Wrap(KindMaxRetriesExceeded, "retry", inner)

	assert.ErrorIs(t, outer, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, outer, ErrTimeout)
	assert.Equal(t, KindMaxRetriesExceeded, KindOf(outer))
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"timeout", New(KindTimeout, "op", "x"), false},
		{"transport", Wrap(KindTransport, "op", errors.New("x")), false},
		{"interrupted", Interrupted("sleep", context.Canceled), true},
		{"invalid argument", New(KindInvalidArgument, "set model", "id 300"), true},
		{"forced fatal transport", Fatalf(KindTransport, "write", "port closed"), true},
		{"context canceled", context.Canceled, true},
		{"wrapped fatal", fmt.Errorf("outer: %w", New(KindDeviceNotReady, "read", "state ERROR")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	d, ok := RetryAfter(&Error{Kind: KindBreakerOpen, RetryAfter: time.Second})
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	_, ok = RetryAfter(New(KindTimeout, "op", "x"))
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "unknown error", Kind(999).String())
	assert.Equal(t, "no match", KindNoMatch.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "recoverable", Recoverable.String())
}
