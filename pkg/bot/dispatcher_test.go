package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

func waitCondition(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestOnRejectsNonFunction(t *testing.T) {
	b := New()

	err := b.On(ttevent.KindMessage, 42)
	require.ErrorIs(t, err, ErrInvalidHandler)

	var nilFn func()
	err = b.On(ttevent.KindMessage, nilFn)
	require.ErrorIs(t, err, ErrInvalidHandler)

	err = b.On(ttevent.KindMessage, func(ttevent.MessageRef) {})
	require.NoError(t, err)
}

func TestOnLastRegistrationWins(t *testing.T) {
	b := New()
	var first, second atomic.Int32

	require.NoError(t, b.On(ttevent.KindReady, func() { first.Add(1) }))
	require.NoError(t, b.On(ttevent.KindReady, func() { second.Add(1) }))

	b.Dispatch(ttevent.KindReady)

	waitCondition(t, time.Second, "second handler to run", func() bool {
		return second.Load() == 1
	})
	assert.Equal(t, int32(0), first.Load())
}

func TestOffRemovesHandler(t *testing.T) {
	b := New()
	var calls atomic.Int32
	require.NoError(t, b.On(ttevent.KindReady, func() { calls.Add(1) }))

	b.Off(ttevent.KindReady)
	b.Dispatch(ttevent.KindReady)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDispatchWithNoRegistrationsIsNoOp(t *testing.T) {
	b := New()
	b.Dispatch(ttevent.KindMessage, ttevent.MessageRef{})
	assert.Equal(t, 0, b.waiterCount(ttevent.KindMessage))
}

func TestWaitForTimeoutRemovesRegistration(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	val, err := b.WaitFor(ctx, ttevent.KindMessage, nil)
	require.ErrorIs(t, err, ErrWaitTimeout)
	assert.Nil(t, val)
	assert.Equal(t, 0, b.waiterCount(ttevent.KindMessage))
}

func TestWaitForCancellation(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := b.WaitFor(ctx, ttevent.KindMessage, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.waiterCount(ttevent.KindMessage))
}

func TestWaitForPayloadShaping(t *testing.T) {
	b := New()

	type result struct {
		val any
		err error
	}
	wait := func(kind ttevent.Kind) chan result {
		ch := make(chan result, 1)
		go func() {
			v, err := b.WaitFor(context.Background(), kind, nil)
			ch <- result{v, err}
		}()
		return ch
	}

	zero := wait(ttevent.KindReady)
	waitCondition(t, time.Second, "zero-arg waiter", func() bool {
		return b.waiterCount(ttevent.KindReady) == 1
	})
	b.Dispatch(ttevent.KindReady)
	r := <-zero
	require.NoError(t, r.err)
	assert.Nil(t, r.val)

	one := wait(ttevent.KindMessage)
	waitCondition(t, time.Second, "one-arg waiter", func() bool {
		return b.waiterCount(ttevent.KindMessage) == 1
	})
	msg := ttevent.MessageRef{}
	b.Dispatch(ttevent.KindMessage, msg)
	r = <-one
	require.NoError(t, r.err)
	assert.Equal(t, msg, r.val)

	two := wait(ttevent.KindUserJoin)
	waitCondition(t, time.Second, "two-arg waiter", func() bool {
		return b.waiterCount(ttevent.KindUserJoin) == 1
	})
	user := ttevent.UserRef{}
	ch := ttevent.ChannelRef{ID: 3}
	b.Dispatch(ttevent.KindUserJoin, user, ch)
	r = <-two
	require.NoError(t, r.err)
	args, ok := r.val.([]any)
	require.True(t, ok)
	require.Len(t, args, 2)
	assert.Equal(t, ch, args[1])
}

func TestWaiterPredicateFiltersAndResolvesOnce(t *testing.T) {
	b := New()

	done := make(chan any, 1)
	go func() {
		v, _ := b.WaitFor(context.Background(), ttevent.KindChannelNew, func(args ...any) bool {
			return args[0].(ttevent.ChannelRef).ID == 7
		})
		done <- v
	}()
	waitCondition(t, time.Second, "waiter registration", func() bool {
		return b.waiterCount(ttevent.KindChannelNew) == 1
	})

	b.Dispatch(ttevent.KindChannelNew, ttevent.ChannelRef{ID: 1})
	assert.Equal(t, 1, b.waiterCount(ttevent.KindChannelNew), "non-matching dispatch must keep the waiter")

	b.Dispatch(ttevent.KindChannelNew, ttevent.ChannelRef{ID: 7})
	got := <-done
	assert.Equal(t, ttevent.ChannelRef{ID: 7}, got)
	assert.Equal(t, 0, b.waiterCount(ttevent.KindChannelNew))
}

func TestPanickingPredicateFailsOnlyItsOwnWaiter(t *testing.T) {
	b := New()

	bad := make(chan error, 1)
	go func() {
		_, err := b.WaitFor(context.Background(), ttevent.KindReady, func(...any) bool {
			panic("boom")
		})
		bad <- err
	}()
	good := make(chan error, 1)
	go func() {
		_, err := b.WaitFor(context.Background(), ttevent.KindReady, nil)
		good <- err
	}()
	waitCondition(t, time.Second, "both waiters registered", func() bool {
		return b.waiterCount(ttevent.KindReady) == 2
	})

	b.Dispatch(ttevent.KindReady)

	require.Error(t, <-bad)
	require.NoError(t, <-good)
	assert.Equal(t, 0, b.waiterCount(ttevent.KindReady))
}

func TestHandlerFaultRoutedToErrorHook(t *testing.T) {
	faults := make(chan any, 1)
	b := New(WithErrorHook(func(kind ttevent.Kind, recovered any, _ []any) {
		faults <- recovered
	}))

	require.NoError(t, b.On(ttevent.KindReady, func() { panic("handler fault") }))
	b.Dispatch(ttevent.KindReady)

	select {
	case got := <-faults:
		assert.Equal(t, "handler fault", got)
	case <-time.After(time.Second):
		t.Fatal("error hook was never invoked")
	}

	// The dispatcher must stay usable after a handler fault.
	var ok atomic.Bool
	require.NoError(t, b.On(ttevent.KindReady, func() { ok.Store(true) }))
	b.Dispatch(ttevent.KindReady)
	waitCondition(t, time.Second, "replacement handler", ok.Load)
}

func TestHandlerSignatureMismatchRoutedToErrorHook(t *testing.T) {
	faults := make(chan any, 1)
	b := New(WithErrorHook(func(kind ttevent.Kind, recovered any, _ []any) {
		faults <- recovered
	}))

	// Wrong arity: dispatch carries one argument, handler takes none of
	// the right shape.
	require.NoError(t, b.On(ttevent.KindMessage, func(a, b, c int) {}))
	b.Dispatch(ttevent.KindMessage, ttevent.MessageRef{})

	select {
	case <-faults:
	case <-time.After(time.Second):
		t.Fatal("signature mismatch did not reach the error hook")
	}
}

func TestPredicateMayCallBackIntoDispatcher(t *testing.T) {
	b := New()
	var echoed atomic.Int32
	require.NoError(t, b.On(ttevent.KindReady, func() { echoed.Add(1) }))

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		val, err := b.WaitFor(ctx, ttevent.KindMessage, func(args ...any) bool {
			// Re-entering the dispatcher from inside a predicate must
			// not deadlock the registry.
			b.Dispatch(ttevent.KindReady)
			return true
		})
		assert.NoError(t, err)
		assert.Equal(t, ttevent.MessageRef{}, val)
	}()

	waitCondition(t, time.Second, "waiter registration", func() bool {
		return b.waiterCount(ttevent.KindMessage) == 1
	})
	b.Dispatch(ttevent.KindMessage, ttevent.MessageRef{})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never resolved")
	}
	waitCondition(t, time.Second, "re-entrant dispatch to reach its handler", func() bool {
		return echoed.Load() == 1
	})
	assert.Equal(t, 0, b.waiterCount(ttevent.KindMessage))
}
