package xerrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
	assert.NoError(t, Wrapf(nil, "table %s", "db.t"))

	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	require.Error(t, wrapped)
	assert.Equal(t, "context: base error", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)

	wrapped = Wrapf(ErrNotFound, "table %s", "db.orders")
	assert.Equal(t, "table db.orders: not found", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrTimeout)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: Wrapf(Wrap(ErrNotFound, "metadata: table not found"), "%s", "db1.t"), want: KindNotFound},
		{name: "invalid input", err: Wrap(ErrInvalidInput, "ratelimit: key is empty"), want: KindInvalidInput},
		{name: "unsupported", err: Wrap(ErrUnsupported, "distribution: unsupported shape"), want: KindUnsupported},
		{name: "conflict", err: ErrConflict, want: KindConflict},
		{name: "unavailable", err: Wrap(ErrUnavailable, "breaker: circuit open"), want: KindUnavailable},
		{name: "timeout", err: ErrTimeout, want: KindTimeout},
		{name: "context deadline", err: Wrap(context.DeadlineExceeded, "probe"), want: KindTimeout},
		{name: "unclassified", err: errors.New("boom"), want: KindInternal},
		{name: "first category in chain wins", err: Combine(ErrNotFound, ErrConflict), want: KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestCombine(t *testing.T) {
	assert.NoError(t, Combine())
	assert.NoError(t, Combine(nil, nil))

	err1 := errors.New("error 1")
	assert.Same(t, err1, Combine(nil, err1, nil))

	err2 := errors.New("error 2")
	combined := Combine(err1, err2)
	var multi *MultiError
	require.ErrorAs(t, combined, &multi)
	assert.Len(t, multi.Errors, 2)
	assert.ErrorIs(t, combined, err1)
	assert.ErrorIs(t, combined, err2)
	assert.Equal(t, "error 1 (and 1 more errors)", combined.Error())
}
