package bot

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

// Predicate gates a one-shot waiter. It receives the dispatch arguments and
// returns true to fulfill the waiter. A panicking predicate fails only its
// own waiter. Predicates run outside the dispatcher's internal locks, so
// they may call back into the Bot.
type Predicate func(args ...any) bool

type waitOutcome struct {
	val any
	err error
}

// waiter is a one-shot registration. It is fulfilled at most once and
// removed from the registry on fulfillment, failure, or cancellation.
type waiter struct {
	pred      Predicate
	ch        chan waitOutcome
	cancelled atomic.Bool
}

func (w *waiter) deliver(out waitOutcome) {
	select {
	case w.ch <- out:
	default:
		// Already fulfilled; the buffered channel holds one outcome.
	}
}

// handlerWrapper holds a registered handler function for one event kind.
type handlerWrapper struct {
	fn reflect.Value
}

// On registers handler for an event kind. The last registration for a kind
// wins. The handler must be a non-nil function; its parameters must match
// the dispatch arguments documented per kind, or the fault is routed to the
// error hook at dispatch time.
func (b *Bot) On(kind ttevent.Kind, handler any) error {
	v := reflect.ValueOf(handler)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("%w: got %T for %q", ErrInvalidHandler, handler, kind)
	}
	b.handlersMu.Lock()
	b.handlers[kind] = &handlerWrapper{fn: v}
	b.handlersMu.Unlock()
	b.logger.Debug("registered handler", "kind", kind)
	return nil
}

// Off removes the handler for a kind, if any.
func (b *Bot) Off(kind ttevent.Kind) {
	b.handlersMu.Lock()
	delete(b.handlers, kind)
	b.handlersMu.Unlock()
}

// WaitFor blocks until an event of the given kind satisfies pred, the
// context is done, or its deadline passes. It returns the dispatch payload:
// nil for zero arguments, the value for one, a []any for several. On
// timeout the registration is removed and ErrWaitTimeout returned; on any
// other cancellation the registration is removed without side effects.
func (b *Bot) WaitFor(ctx context.Context, kind ttevent.Kind, pred Predicate) (any, error) {
	if pred == nil {
		pred = func(...any) bool { return true }
	}
	w := &waiter{pred: pred, ch: make(chan waitOutcome, 1)}

	b.waitersMu.Lock()
	b.waiters[kind] = append(b.waiters[kind], w)
	b.waitersMu.Unlock()

	select {
	case out := <-w.ch:
		return out.val, out.err
	case <-ctx.Done():
		w.cancelled.Store(true)
		b.removeWaiter(kind, w)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrWaitTimeout
		}
		return nil, ctx.Err()
	}
}

func (b *Bot) removeWaiter(kind ttevent.Kind, target *waiter) {
	b.waitersMu.Lock()
	defer b.waitersMu.Unlock()
	ws := b.waiters[kind]
	for i, w := range ws {
		if w == target {
			b.waiters[kind] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(b.waiters[kind]) == 0 {
		delete(b.waiters, kind)
	}
}

// waiterCount reports the number of registered waiters for a kind.
func (b *Bot) waiterCount(kind ttevent.Kind) int {
	b.waitersMu.Lock()
	defer b.waitersMu.Unlock()
	return len(b.waiters[kind])
}

// Dispatch fans one event out: every registered waiter for the kind is
// evaluated first (and resolved waiters removed), then the named handler,
// if any, is scheduled as an independent unit of work. Dispatch never
// blocks on handler execution and never panics on behalf of a handler or
// predicate.
func (b *Bot) Dispatch(kind ttevent.Kind, args ...any) {
	b.logger.Debug("dispatching", "kind", kind)

	// Predicates run against a snapshot, outside the registry lock, so a
	// predicate is free to call back into the dispatcher. Delivery is
	// one-shot regardless: the outcome channel holds a single value.
	b.waitersMu.Lock()
	ws := append([]*waiter(nil), b.waiters[kind]...)
	b.waitersMu.Unlock()
	for _, w := range ws {
		if w.cancelled.Load() {
			continue
		}
		ok, perr := evalPredicate(w.pred, args)
		switch {
		case perr != nil:
			w.deliver(waitOutcome{err: perr})
			b.removeWaiter(kind, w)
		case ok:
			w.deliver(waitOutcome{val: shapeArgs(args)})
			b.removeWaiter(kind, w)
		}
	}

	b.handlersMu.RLock()
	h := b.handlers[kind]
	b.handlersMu.RUnlock()
	if h != nil {
		go b.runHandler(kind, h, args)
	}
}

func evalPredicate(pred Predicate, args []any) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bot: waiter predicate panicked: %v", r)
		}
	}()
	return pred(args...), nil
}

// shapeArgs maps dispatch arguments onto the waiter payload: zero
// arguments become nil, one becomes the value, several become a []any.
func shapeArgs(args []any) any {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return args[0]
	default:
		return args
	}
}

// runHandler invokes one scheduled handler, containing any fault at the
// dispatcher boundary.
func (b *Bot) runHandler(kind ttevent.Kind, h *handlerWrapper, args []any) {
	defer func() {
		if r := recover(); r != nil {
			b.onError(kind, r, args)
		}
	}()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil {
			in[i] = reflect.Zero(h.fn.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(a)
	}
	h.fn.Call(in)
}

// defaultErrorHook is the default fault sink for scheduled handlers: it
// logs and continues, leaving the pump and sibling handlers unaffected.
func (b *Bot) defaultErrorHook(kind ttevent.Kind, recovered any, _ []any) {
	b.logger.Error("ignoring fault in event handler", "kind", kind, "fault", recovered)
}
