package core

import (
	"sync"

	"golang.org/x/exp/maps"
)

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	// Keyboard key pressed. Data is a KeyEvent.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02
	// Keyboard key released. Data is a KeyEvent.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03
	// Resized/resolution changed from the OS. Data is a ResizeEvent.
	EVENT_CODE_RESIZED SystemEventCode = 0x08
	// Asset files changed on disk. Data is an AssetEvent.
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type KeyEvent struct {
	KeyCode int
}

type ResizeEvent struct {
	Width  uint32
	Height uint32
}

type AssetEvent struct {
	Paths []string
	// Recompile is set when a shader or pipeline record changed.
	Recompile bool
}

// Should return true if handled.
type FnOnEvent func(context EventContext) bool

// EventBus queues events from any goroutine and dispatches them on the caller of Dispatch.
type EventBus struct {
	mu         sync.Mutex
	pending    []EventContext
	registered map[SystemEventCode][]FnOnEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]FnOnEvent),
	}
}

func (b *EventBus) Register(code SystemEventCode, onEvent FnOnEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered[code] = append(b.registered[code], onEvent)
}

// Fire queues the event. It is safe to call from watcher goroutines.
func (b *EventBus) Fire(context EventContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, context)
}

// Dispatch delivers every queued event in order and returns how many were delivered.
// Listeners are called until one reports the event handled.
func (b *EventBus) Dispatch() int {
	b.mu.Lock()
	events := b.pending
	b.pending = nil
	listeners := maps.Clone(b.registered)
	b.mu.Unlock()

	for _, e := range events {
		for _, fn := range listeners[e.Type] {
			if fn(e) {
				break
			}
		}
	}
	return len(events)
}
