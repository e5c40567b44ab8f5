package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	return f.err
}

// scripted returns an operation that yields errs in order, then nil.
func scripted(calls *int, errs ...error) Operation {
	return func(ctx context.Context) error {
		*calls++
		if len(errs) == 0 {
			return nil
		}
		err := errs[0]
		errs = errs[1:]
		return err
	}
}

var errBridge = errors.New("bridge unreachable")

func TestAttempt_SuccessFirstTry(t *testing.T) {
	r := &fakeRefresher{}
	c := NewCoordinator(r)

	var calls int
	require.NoError(t, c.Attempt(context.Background(), "ToggleGroup", scripted(&calls)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.calls)
	assert.False(t, c.Retried("ToggleGroup"))
}

func TestAttempt_RetriesOnceAfterRefresh(t *testing.T) {
	r := &fakeRefresher{}
	c := NewCoordinator(r)

	var calls int
	err := c.Attempt(context.Background(), "ToggleGroup", scripted(&calls, errBridge))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, r.calls)
	assert.False(t, c.Retried("ToggleGroup"), "success must reset the ledger")
}

func TestAttempt_RetryFailureIsFinal(t *testing.T) {
	r := &fakeRefresher{}
	c := NewCoordinator(r)

	var calls int
	err := c.Attempt(context.Background(), "ToggleGroup", scripted(&calls, errBridge, errBridge, errBridge))
	require.ErrorIs(t, err, errBridge)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, r.calls)
	assert.True(t, c.Retried("ToggleGroup"))
}

func TestAttempt_ExhaustedMakesNoRecoveryCalls(t *testing.T) {
	r := &fakeRefresher{}
	c := NewCoordinator(r)

	var calls int
	op := scripted(&calls, errBridge, errBridge, errBridge)
	_ = c.Attempt(context.Background(), "ActivateScene", op)
	require.Equal(t, 2, calls)

	err := c.Attempt(context.Background(), "ActivateScene", op)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, errBridge)
	assert.Equal(t, 3, calls, "the operation itself runs once")
	assert.Equal(t, 1, r.calls, "no second refresh")
}

func TestAttempt_SuccessRestoresRetryBudget(t *testing.T) {
	r := &fakeRefresher{}
	c := NewCoordinator(r)

	var calls int
	op := scripted(&calls, errBridge, errBridge, nil, errBridge)
	_ = c.Attempt(context.Background(), "SetBrightness", op) // fail, refresh, fail
	require.True(t, c.Retried("SetBrightness"))

	require.NoError(t, c.Attempt(context.Background(), "SetBrightness", op))
	require.False(t, c.Retried("SetBrightness"))

	// next failure episode may refresh again
	require.NoError(t, c.Attempt(context.Background(), "SetBrightness", op))
	assert.Equal(t, 2, r.calls)
}

func TestAttempt_RefreshFailureSkipsRerun(t *testing.T) {
	r := &fakeRefresher{err: errors.New("discovery failed")}
	c := NewCoordinator(r)

	var calls int
	err := c.Attempt(context.Background(), "ResolveGroup", scripted(&calls, errBridge))
	require.ErrorIs(t, err, errBridge)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, r.calls)
	assert.True(t, c.Retried("ResolveGroup"))
}

func TestAttempt_PermanentErrorsAreNotRetried(t *testing.T) {
	r := &fakeRefresher{}
	c := NewCoordinator(r)

	cfgErr := errors.New("no owner configured")
	var calls int
	err := c.Attempt(context.Background(), "ResolveGroup", scripted(&calls, Permanent(cfgErr)))
	require.ErrorIs(t, err, cfgErr)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.calls)
	assert.False(t, c.Retried("ResolveGroup"))
}

func TestAttempt_LedgerIsPerOperation(t *testing.T) {
	r := &fakeRefresher{}
	c := NewCoordinator(r)

	var a, b int
	_ = c.Attempt(context.Background(), "ToggleGroup", scripted(&a, errBridge, errBridge))
	require.True(t, c.Retried("ToggleGroup"))

	require.NoError(t, c.Attempt(context.Background(), "ActivateScene", scripted(&b, errBridge)))
	assert.Equal(t, 2, b, "another operation keeps its own retry budget")
	assert.Equal(t, 2, r.calls)

	snap := c.Snapshot()
	assert.Equal(t, map[string]bool{"ToggleGroup": true, "ActivateScene": false}, snap)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errBridge))
}
