package ports

import "context"

type LifecycleEvent int

const (
	BeforeNodeStart LifecycleEvent = iota
	AfterNodeStart
	BeforeNodeStop
	AfterNodeStop
)

func (e LifecycleEvent) String() string {
	switch e {
	case BeforeNodeStart:
		return "before_node_start"
	case AfterNodeStart:
		return "after_node_start"
	case BeforeNodeStop:
		return "before_node_stop"
	case AfterNodeStop:
		return "after_node_stop"
	default:
		return "unknown"
	}
}

// LifecycleHooks receives runtime callbacks. An error from BeforeNodeStart
// aborts the runtime start.
type LifecycleHooks interface {
	OnLifecycleEvent(ctx context.Context, event LifecycleEvent) error
}

type PreStartHook interface {
	BeforeNodeStart(ctx context.Context) error
}

type PreStopHook interface {
	BeforeNodeStop(ctx context.Context) error
}
