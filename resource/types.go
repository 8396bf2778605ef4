package resource

// Handle is an opaque reference to a value in a Table.
// The low 32 bits hold the slot index plus one, the high 32 bits the slot generation.
// Handle 0 is reserved and always invalid.
type Handle uint64

// Index returns the zero-based slot index encoded in the handle.
func (h Handle) Index() uint32 {
	return uint32(h) - 1
}

// Generation returns the slot generation encoded in the handle.
func (h Handle) Generation() uint32 {
	return uint32(h >> 32)
}

func makeHandle(index, generation uint32) Handle {
	return Handle(generation)<<32 | Handle(index+1)
}

// EventType identifies a resource lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}
