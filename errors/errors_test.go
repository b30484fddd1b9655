package errors

import (
	"errors"
	"testing"
)

func TestWithMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		msg  string
		want string
	}{
		{name: "with message", err: ErrConfig, msg: "projectId missing", want: "configuration error: projectId missing"},
		{name: "no message", err: ErrJobFailed, msg: "", want: "job failed"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := WithMessage(tt.err, tt.msg)
			if got.Error() != tt.want {
				t.Errorf("WithMessage() = %q, want %q", got.Error(), tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("WithMessage() does not wrap %v", tt.err)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindTransient},
		{"config", WithMessage(ErrConfig, "x"), KindConfiguration},
		{"handler missing", ErrHandlerMissing, KindHandlerMissing},
		{"auth", WithMessage(ErrAuthRefresh, "x"), KindAuth},
		{"rate limit", ErrRateLimited, KindRateLimit},
		{"unknown", errors.New("boom"), KindTransient},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
