package util

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestRetryOperation(t *testing.T) {
	calls := 0
	err := RetryOperation(context.Background(), time.Millisecond, 3, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryOperationGivesUp(t *testing.T) {
	calls := 0
	err := RetryOperation(context.Background(), time.Millisecond, 2, func() error {
		calls++
		return errTransient
	})
	require.ErrorIs(t, err, errTransient)
	require.Equal(t, 3, calls)
}

func TestRetryOperationContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryOperation(ctx, 10*time.Millisecond, 5, func() error {
		return errTransient
	})
	require.Error(t, err)
}

func TestRetryOperationForErrors(t *testing.T) {
	errFatal := errors.New("fatal")

	calls := 0
	err := RetryOperationForErrors(context.Background(), time.Millisecond, 5, func() error {
		calls++
		return errFatal
	}, errTransient)
	require.ErrorIs(t, err, errFatal)
	require.Equal(t, 1, calls)

	calls = 0
	err = RetryOperationForErrors(context.Background(), time.Millisecond, 5, func() error {
		calls++
		if calls == 1 {
			return errTransient
		}
		return nil
	}, errTransient)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestGoWithWaitGroup(t *testing.T) {
	wg := &sync.WaitGroup{}
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		GoWithWaitGroup(wg, func() { n.Add(1) })
	}
	wg.Wait()
	require.Equal(t, int32(10), n.Load())
}

func TestGetenvBool(t *testing.T) {
	t.Setenv("PARTUP_TEST_BOOL", "false")
	require.False(t, GetenvBool("PARTUP_TEST_BOOL", true))
	t.Setenv("PARTUP_TEST_BOOL", "nope")
	require.True(t, GetenvBool("PARTUP_TEST_BOOL", true))
	require.Equal(t, "x", Getenv("PARTUP_TEST_UNSET", "x"))
}

func TestTraceIDWithoutSpan(t *testing.T) {
	require.Equal(t, "", TraceID(context.Background()))
}
