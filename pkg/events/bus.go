package events

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

// Handler delivers one event. A returned error causes the event to be
// retried; events behind it wait.
type Handler func(ctx context.Context, event *ctdf.Event) error

type Filter func(event *ctdf.Event) bool

// SectionFilter matches events that concern the section. An empty section
// matches everything.
func SectionFilter(sectionID string) Filter {
	if sectionID == "" {
		return nil
	}
	return func(event *ctdf.Event) bool {
		return event.Concerns(sectionID)
	}
}

// Bus fans events out to subscribers. Every subscription has its own queue
// and goroutine, so a slow subscriber never holds up publishers or other
// subscribers, and each sees events in publish order.
type Bus struct {
	mutex         sync.RWMutex
	subscriptions map[string]*subscription

	// NewBackOff builds the retry policy for a failed delivery.
	NewBackOff func() backoff.BackOff

	wg sync.WaitGroup
}

type subscription struct {
	id      string
	name    string
	filter  Filter
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	mutex  sync.Mutex
	queue  []*ctdf.Event
	notify chan struct{}
}

func NewBus() *Bus {
	return &Bus{
		subscriptions: map[string]*subscription{},
		NewBackOff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 100 * time.Millisecond
			policy.MaxElapsedTime = time.Minute
			return policy
		},
	}
}

// Subscribe registers a handler and returns the function that removes it.
func (b *Bus) Subscribe(name string, filter Filter, handler Handler) func() {
	return b.subscribe(name, filter, handler, nil)
}

func (b *Bus) subscribe(name string, filter Filter, handler Handler, stopped func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		id:      uuid.NewString(),
		name:    name,
		filter:  filter,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		notify:  make(chan struct{}, 1),
	}

	b.mutex.Lock()
	b.subscriptions[s.id] = s
	b.mutex.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.deliver(s)
		if stopped != nil {
			stopped()
		}
	}()

	log.Debug().Str("subscription", name).Msg("Event subscriber added")

	return func() {
		b.mutex.Lock()
		delete(b.subscriptions, s.id)
		b.mutex.Unlock()

		s.cancel()
	}
}

// SubscribeChannel delivers matching events on a channel until the returned
// function is called. The channel is closed once delivery has stopped.
func (b *Bus) SubscribeChannel(name string, filter Filter, size int) (<-chan *ctdf.Event, func()) {
	channel := make(chan *ctdf.Event, size)

	unsubscribe := b.subscribe(name, filter, func(ctx context.Context, event *ctdf.Event) error {
		select {
		case channel <- event:
			return nil
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		}
	}, func() {
		close(channel)
	})

	return channel, unsubscribe
}

func (b *Bus) Publish(events ...*ctdf.Event) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for _, s := range b.subscriptions {
		s.enqueue(events)
	}
}

// Close stops every subscription and waits for their goroutines to exit.
// Undelivered events are dropped.
func (b *Bus) Close() {
	b.mutex.Lock()
	for id, s := range b.subscriptions {
		s.cancel()
		delete(b.subscriptions, id)
	}
	b.mutex.Unlock()

	b.wg.Wait()
}

func (s *subscription) enqueue(events []*ctdf.Event) {
	s.mutex.Lock()
	for _, event := range events {
		if s.filter == nil || s.filter(event) {
			s.queue = append(s.queue, event)
		}
	}
	s.mutex.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) next() (*ctdf.Event, bool) {
	for {
		s.mutex.Lock()
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mutex.Unlock()
			return event, true
		}
		s.mutex.Unlock()

		select {
		case <-s.ctx.Done():
			return nil, false
		case <-s.notify:
		}
	}
}

func (b *Bus) deliver(s *subscription) {
	for {
		event, ok := s.next()
		if !ok {
			return
		}

		err := backoff.RetryNotify(func() error {
			return s.handler(s.ctx, event)
		}, backoff.WithContext(b.NewBackOff(), s.ctx), func(err error, wait time.Duration) {
			log.Warn().Err(err).
				Str("subscription", s.name).
				Str("event", event.ID).
				Str("type", string(event.Type)).
				Str("retry_in", wait.String()).
				Msg("Event delivery failed")
		})
		if err != nil && s.ctx.Err() == nil {
			log.Error().Err(err).
				Str("subscription", s.name).
				Str("event", event.ID).
				Str("type", string(event.Type)).
				Msg("Giving up on event delivery")
		}
	}
}
