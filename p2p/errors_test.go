package p2p

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "channel closed names the endpoint",
			err:  &Error{Kind: KindChannelClosed, Endpoint: "commands"},
			want: "p2p: channel_closed: commands",
		},
		{
			name: "wrapped cause with message",
			err:  &Error{Kind: KindRemoteCall, Message: "Find", Err: errors.New("no reply")},
			want: "p2p: remote_call: Find: no reply",
		},
		{
			name: "wrapped cause without message",
			err:  &Error{Kind: KindSerialization, Err: errors.New("bad signature")},
			want: "p2p: serialization: bad signature",
		},
		{
			name: "message only",
			err:  &Error{Kind: KindInvalidInput, Message: "empty device address"},
			want: "p2p: invalid_input: empty device address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	base := &Error{Kind: KindRemoteCall, Message: "Find failed"}

	if !IsKind(base, KindRemoteCall) {
		t.Error("expected IsKind to match the error's own kind")
	}
	if IsKind(base, KindChannelClosed) {
		t.Error("expected IsKind to reject a different kind")
	}
	if !IsKind(fmt.Errorf("submit: %w", base), KindRemoteCall) {
		t.Error("expected IsKind to see through wrapping")
	}
	if IsKind(errors.New("plain"), KindRemoteCall) {
		t.Error("expected IsKind to reject non-Error values")
	}
	if IsKind(nil, KindRemoteCall) {
		t.Error("expected IsKind(nil) to be false")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disconnected")
	err := &Error{Kind: KindRemoteCall, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}
