package chat

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrComposerBusy is returned when a reply is already streaming.
var ErrComposerBusy = errors.New("chat: composer busy")

// Composer is the send control: at most one outstanding request.
type Composer struct {
	busy atomic.Bool
}

// Acquire disables the composer. The returned release re-enables it and is
// safe to call more than once.
func (c *Composer) Acquire() (release func(), err error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrComposerBusy
	}
	var once sync.Once
	return func() { once.Do(func() { c.busy.Store(false) }) }, nil
}

// Enabled reports whether a new request may start.
func (c *Composer) Enabled() bool { return !c.busy.Load() }
