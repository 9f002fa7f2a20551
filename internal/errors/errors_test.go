package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind and message only",
			err:  &Error{Kind: KindDuplicateFeature, Message: "feature exists"},
			want: "feature exists",
		},
		{
			name: "with stage and column",
			err:  NewDegenerateColumn("transform", "price", "zero standard deviation"),
			want: `[transform] column "price": zero standard deviation`,
		},
		{
			name: "with cause",
			err:  NewIO("load", "open source", errors.New("no such file")),
			want: "[load] open source: no such file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewSchemaMismatch("validate", "ts", "missing"))

	assert.True(t, errors.Is(err, &Error{Kind: KindSchemaMismatch}))
	assert.False(t, errors.Is(err, &Error{Kind: KindIO}))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewIO("persist", "write dataset", cause)

	require.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewIO("load", "read", errors.New("timeout"))))
	assert.False(t, IsRetryable(NewSourceFormat("load", "bad header", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindInsufficientData, KindOf(NewInsufficientData("clean", "volume", "all null")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestWithStage(t *testing.T) {
	t.Run("fills empty stage", func(t *testing.T) {
		err := WithStage(NewDuplicateFeature("lag_1"), "features")
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "features", e.Stage)
	})

	t.Run("keeps existing stage", func(t *testing.T) {
		err := WithStage(NewSchemaMismatch("validate", "ts", "missing"), "clean")
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "validate", e.Stage)
	})

	t.Run("wraps foreign errors", func(t *testing.T) {
		cause := errors.New("boom")
		err := WithStage(cause, "clean")
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "clean", e.Stage)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, WithStage(nil, "clean"))
	})
}
