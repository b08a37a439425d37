package events

import "context"

// LocalBus fans events out to in-process subscribers only, for
// single-replica deployments and tests where Redis would be pure overhead.
type LocalBus struct {
	subs []chan Event
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus { return &LocalBus{} }

func (b *LocalBus) Publish(ctx context.Context, ev Event) {
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, 64)
	b.subs = append(b.subs, ch)
	unsubscribe := func() {
		for i, s := range b.subs {
			if s == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsubscribe, nil
}
