package errclass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{
			name: "nil is permanent",
			err:  nil,
			want: ClassPermanent,
		},
		{
			name: "plain error is permanent",
			err:  errors.New("missing cid"),
			want: ClassPermanent,
		},
		{
			name: "explicit transient tag",
			err:  Transient(errors.New("gateway 503")),
			want: ClassTransient,
		},
		{
			name: "explicit permanent tag",
			err:  Permanent(errors.New("empty payload")),
			want: ClassPermanent,
		},
		{
			name: "tag survives wrapping",
			err:  fmt.Errorf("resolve org: %w", Transient(errors.New("503"))),
			want: ClassTransient,
		},
		{
			name: "permanent tag wins over network shape",
			err:  Permanent(&url.Error{Op: "Post", URL: "http://mss", Err: errors.New("400")}),
			want: ClassPermanent,
		},
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
			want: ClassTransient,
		},
		{
			name: "connection refused",
			err:  &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED},
			want: ClassTransient,
		},
		{
			name: "connection reset",
			err:  fmt.Errorf("write: %w", syscall.ECONNRESET),
			want: ClassTransient,
		},
		{
			name: "dns failure",
			err:  &net.DNSError{Err: "no such host", Name: "mss.example"},
			want: ClassTransient,
		},
		{
			name: "net timeout",
			err:  timeoutErr{},
			want: ClassTransient,
		},
		{
			name: "url request-phase error",
			err:  &url.Error{Op: "Post", URL: "http://mss", Err: errors.New("request canceled")},
			want: ClassTransient,
		},
		{
			name: "unexpected EOF",
			err:  io.ErrUnexpectedEOF,
			want: ClassTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(nil) {
		t.Error("IsTransient(nil) = true, want false")
	}
	if !IsTransient(Transient(errors.New("x"))) {
		t.Error("IsTransient(Transient(x)) = false, want true")
	}
	if IsTransient(errors.New("x")) {
		t.Error("IsTransient(plain) = true, want false")
	}
}

func TestIsPermanent(t *testing.T) {
	if IsPermanent(nil) {
		t.Error("IsPermanent(nil) = true, want false")
	}
	if !IsPermanent(errors.New("x")) {
		t.Error("IsPermanent(plain) = false, want true")
	}
	if IsPermanent(&net.OpError{Op: "dial", Err: errors.New("timeout"), Addr: nil}) {
		// OpError without a classified cause still matches net.Error
		t.Error("IsPermanent(net.OpError) = true, want false")
	}
}

func TestTagNil(t *testing.T) {
	if Transient(nil) != nil {
		t.Error("Transient(nil) != nil")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}
