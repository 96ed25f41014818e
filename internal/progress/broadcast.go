package progress

import "sync"

const defaultBuffer = 16

// Broadcaster fans snapshots out to subscribers without ever blocking the publisher.
type Broadcaster struct {
	mu      sync.Mutex
	buffer  int
	nextID  uint64
	subs    map[uint64]chan State
	last    State
	hasLast bool
	closed  bool
}

// NewBroadcaster constructs a broadcaster whose subscribers buffer up to
// buffer snapshots before older ones are dropped.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broadcaster{buffer: buffer, subs: make(map[uint64]chan State)}
}

// Publish delivers s to every subscriber. Full subscribers drop their
// oldest pending snapshot to make room.
func (b *Broadcaster) Publish(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = s
	b.hasLast = true
	for _, ch := range b.subs {
		offer(ch, s)
	}
}

func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Subscribe registers a reader. The latest snapshot, if any, is delivered
// first. The returned function unsubscribes and closes the channel; it is
// safe to call more than once. Subscribing after Close yields a closed
// channel carrying only the final snapshot.
func (b *Broadcaster) Subscribe() (<-chan State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan State, b.buffer)
	if b.hasLast {
		ch <- b.last
	}
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Latest returns the most recent snapshot.
func (b *Broadcaster) Latest() (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
