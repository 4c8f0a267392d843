package idle

import "sync"

// Signal is a kind of user interaction.
type Signal string

const (
	PointerMove Signal = "pointermove"
	KeyDown     Signal = "keydown"
	Click       Signal = "click"
	Scroll      Signal = "scroll"
	TouchStart  Signal = "touchstart"
)

// Signals is the set the monitor listens to.
var Signals = []Signal{PointerMove, KeyDown, Click, Scroll, TouchStart}

// Source delivers interaction signals. The returned func removes the
// listener; calling it more than once is harmless.
type Source interface {
	On(signal Signal, fn func()) (off func())
}

// Bus is an in-process Source. Emit fans a signal out to its listeners.
type Bus struct {
	mu       sync.Mutex
	handlers map[Signal]map[int]func()
	nextID   int
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[Signal]map[int]func())}
}

func (b *Bus) On(signal Signal, fn func()) (off func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[signal] == nil {
		b.handlers[signal] = make(map[int]func())
	}
	b.handlers[signal][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[signal], id)
			if len(b.handlers[signal]) == 0 {
				delete(b.handlers, signal)
			}
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Emit(signal Signal) {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.handlers[signal]))
	for _, fn := range b.handlers[signal] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Listeners returns how many listeners are registered for signal.
func (b *Bus) Listeners(signal Signal) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[signal])
}
