package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jimsnab/go-cns-console/mirror"
	"github.com/jimsnab/go-cns-console/session"
	"github.com/jimsnab/go-lane"
	"github.com/oklog/ulid/v2"
)

const DefaultQueueSize = 64

type (
	// Sender delivers a payload to one consumer.
	Sender interface {
		Send(ctx context.Context, p *Payload) error
	}

	SenderFunc func(ctx context.Context, p *Payload) error

	// Broadcaster fans session changes out to consumers. Each consumer has
	// its own queue and sending goroutine, so a slow or failing consumer
	// never holds up the others.
	Broadcaster struct {
		mu        sync.Mutex
		l         lane.Lane
		s         *session.Session
		consumers map[string]*consumer
		queueSize int
		unsub     func()
		closed    bool
	}

	consumer struct {
		id       string
		sender   Sender
		queue    chan *Payload
		needFull atomic.Bool
		ctx      context.Context
		cancel   context.CancelFunc
		done     chan struct{}
	}
)

func (f SenderFunc) Send(ctx context.Context, p *Payload) error {
	return f(ctx, p)
}

// New follows the changes of s. Close stops it.
func New(l lane.Lane, s *session.Session) *Broadcaster {
	b := &Broadcaster{
		l:         l,
		s:         s,
		consumers: map[string]*consumer{},
		queueSize: DefaultQueueSize,
	}
	b.unsub = s.Subscribe(b.onChange)
	return b
}

// SetQueueSize sets the queue length of consumers that join afterward.
func (b *Broadcaster) SetQueueSize(size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queueSize = max(size, 1)
}

func (b *Broadcaster) onChange(c mirror.Change) {
	switch c.Kind {
	case mirror.ChangePut:
		value := c.Value
		b.publish(DiffPayload(b.s, map[string]*string{c.Path: &value}))
	case mirror.ChangeDelete:
		b.publish(DiffPayload(b.s, map[string]*string{c.Path: nil}))
	case mirror.ChangeReset:
		b.publish(FullPayload(b.s))
	default:
		b.publish(DiffPayload(b.s, nil))
	}
}

// PublishState sends the current session state without namespace changes,
// e.g. after statistics moved.
func (b *Broadcaster) PublishState() {
	b.publish(DiffPayload(b.s, nil))
}

// PublishFull sends every consumer a full snapshot.
func (b *Broadcaster) PublishFull() {
	b.publish(FullPayload(b.s))
}

func (b *Broadcaster) publish(p *Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var full *Payload
	for _, c := range b.consumers {
		msg := p
		if !p.Full && c.needFull.Load() {
			if full == nil {
				full = FullPayload(b.s)
			}
			msg = full
		}

		select {
		case c.queue <- msg:
			if msg.Full {
				c.needFull.Store(false)
			}
		default:
			if !c.needFull.Swap(true) {
				b.l.Debugf("consumer %s fell behind; a full snapshot follows", c.id)
			}
		}
	}
}

// Join adds a consumer and queues a full snapshot for it. The returned id
// is used to remove it.
func (b *Broadcaster) Join(sender Sender) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	c := &consumer{
		id:     ulid.Make().String(),
		sender: sender,
		queue:  make(chan *Payload, b.queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if b.closed {
		cancel()
		close(c.done)
		return c.id
	}

	c.queue <- FullPayload(b.s)
	b.consumers[c.id] = c
	go b.run(c)

	b.l.Infof("dashboard consumer %s joined", c.id)
	return c.id
}

func (b *Broadcaster) run(c *consumer) {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case p := <-c.queue:
			if err := c.sender.Send(c.ctx, p); err != nil {
				if c.ctx.Err() == nil {
					b.l.Infof("dropping dashboard consumer %s: %s", c.id, err)
				}
				b.remove(c.id)
				return
			}
		}
	}
}

func (b *Broadcaster) remove(id string) *consumer {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, exists := b.consumers[id]
	if !exists {
		return nil
	}
	delete(b.consumers, id)
	c.cancel()
	return c
}

// Leave removes a consumer and waits for its sending goroutine to end.
func (b *Broadcaster) Leave(id string) {
	if c := b.remove(id); c != nil {
		<-c.done
		b.l.Infof("dashboard consumer %s left", id)
	}
}

func (b *Broadcaster) Consumers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.consumers)
}

// Close stops following the session and removes every consumer.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	ids := make([]string, 0, len(b.consumers))
	for id := range b.consumers {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	b.unsub()
	for _, id := range ids {
		b.Leave(id)
	}
}
