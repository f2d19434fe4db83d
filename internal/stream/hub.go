// Package stream distributes engine events to subscribers and consumers.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"paper-trader/internal/models"
)

// HubConfig holds configuration for the event hub.
type HubConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// ConsumerBufferSize is the queue length in front of each consumer.
	ConsumerBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           1000,
		SubscriberBufferSize: 100,
		ConsumerBufferSize:   1000,
	}
}

// Hub fans events out from the accounts to channel subscribers and
// registered consumers. Subscribers are best effort: a full subscriber
// channel drops the event. Consumers are lossless and each is served by its
// own goroutine, so a consumer sees events in publish order.
type Hub struct {
	config HubConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	events      chan models.Event
	done        chan struct{}
	started     bool
	stopped     bool

	// publishMu is held shared by Publish and exclusively by halt, so no
	// send lands in events after the hub stops accepting.
	publishMu sync.RWMutex
	closed    bool

	consumersMu sync.Mutex
	consumers   []*worker
	drained     bool
	wg          sync.WaitGroup

	// Metrics
	metricsMu       sync.RWMutex
	eventsReceived  uint64
	eventsBroadcast uint64
	eventsDropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	AccountID    string
	Channel      chan models.Event
	DroppedCount int
	CreatedAt    time.Time
}

// Consumer processes events. Accounts returns the account IDs it wants;
// nil or empty means every account.
type Consumer interface {
	OnEvent(event models.Event)
	Accounts() []string
}

type worker struct {
	consumer Consumer
	queue    chan models.Event
}

// NewHub creates a new hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig(), zerolog.Nop())
}

// NewHubWithConfig creates a new hub with custom configuration.
func NewHubWithConfig(config HubConfig, logger zerolog.Logger) *Hub {
	def := DefaultHubConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = def.SubscriberBufferSize
	}
	if config.ConsumerBufferSize <= 0 {
		config.ConsumerBufferSize = def.ConsumerBufferSize
	}
	return &Hub{
		config:      config,
		logger:      logger,
		subscribers: make(map[string][]*Subscriber),
		events:      make(chan models.Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the distribution loop. It returns immediately; the loop
// ends when ctx is done or Stop is called. Either way the hub stops
// accepting events and delivers what was already published.
func (h *Hub) Start(ctx context.Context) error {
	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()

	h.mu.Lock()
	if h.started || h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	for _, w := range h.consumers {
		h.runWorker(w)
	}

	h.wg.Add(1)
	go h.broadcastLoop(ctx)
	return nil
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			h.halt()
			h.drain()
			return
		case <-h.done:
			h.halt()
			h.drain()
			return
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

// drain delivers whatever is still buffered and closes consumer queues.
func (h *Hub) drain() {
	for {
		select {
		case ev := <-h.events:
			h.dispatch(ev)
		default:
			h.consumersMu.Lock()
			for _, w := range h.consumers {
				close(w.queue)
			}
			h.consumers = nil
			h.drained = true
			h.consumersMu.Unlock()
			return
		}
	}
}

func (h *Hub) dispatch(ev models.Event) {
	h.metricsMu.Lock()
	h.eventsReceived++
	h.metricsMu.Unlock()

	h.broadcast(ev)
	h.notifyConsumers(ev)
}

// halt stops the hub accepting events. Once it returns no further event
// can enter the buffer.
func (h *Hub) halt() {
	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
	h.mu.Unlock()

	h.publishMu.Lock()
	h.closed = true
	h.publishMu.Unlock()
}

// Stop stops the hub, waits for consumers to finish their queues and closes
// all subscriber channels. Events buffered on a hub that never started are
// counted as dropped.
func (h *Hub) Stop() {
	h.halt()
	h.wg.Wait()

	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()
	if !started {
		h.discard()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for account, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, account)
	}
}

func (h *Hub) discard() {
	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()
	if h.drained {
		return
	}
	for {
		select {
		case <-h.events:
			h.metricsMu.Lock()
			h.eventsDropped++
			h.metricsMu.Unlock()
		default:
			h.consumers = nil
			h.drained = true
			return
		}
	}
}

// Publish queues an event for distribution. It waits for buffer space
// rather than dropping, and drops only once the hub is stopped.
func (h *Hub) Publish(ev models.Event) {
	h.publishMu.RLock()
	defer h.publishMu.RUnlock()

	if !h.closed {
		select {
		case h.events <- ev:
			return
		case <-h.done:
		}
	}
	h.metricsMu.Lock()
	h.eventsDropped++
	h.metricsMu.Unlock()
}

// Subscribe returns a channel receiving the events of accountID. An empty
// accountID receives every account.
func (h *Hub) Subscribe(accountID string) <-chan models.Event {
	return h.SubscribeWithID(accountID, "")
}

// SubscribeWithID adds a subscriber with a specific ID.
func (h *Hub) SubscribeWithID(accountID, id string) <-chan models.Event {
	ch := make(chan models.Event, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		AccountID: accountID,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[accountID] = append(h.subscribers[accountID], sub)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(accountID string, ch <-chan models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[accountID]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[accountID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[accountID]) == 0 {
		delete(h.subscribers, accountID)
	}
}

// broadcast sends ev to subscribers of its account and to catch-all
// subscribers. Sends are non-blocking; the read lock keeps channels open.
func (h *Hub) broadcast(ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, key := range []string{ev.AccountID, ""} {
		for _, sub := range h.subscribers[key] {
			select {
			case sub.Channel <- ev:
				h.metricsMu.Lock()
				h.eventsBroadcast++
				h.metricsMu.Unlock()
			default:
				sub.DroppedCount++
				h.metricsMu.Lock()
				h.eventsDropped++
				h.metricsMu.Unlock()
			}
		}
		if ev.AccountID == "" {
			break
		}
	}
}

// RegisterConsumer adds a consumer. Registering after Start is allowed.
func (h *Hub) RegisterConsumer(consumer Consumer) {
	w := &worker{
		consumer: consumer,
		queue:    make(chan models.Event, h.config.ConsumerBufferSize),
	}

	h.consumersMu.Lock()
	defer h.consumersMu.Unlock()

	h.mu.RLock()
	started := h.started
	h.mu.RUnlock()
	if h.drained {
		return
	}

	h.consumers = append(h.consumers, w)
	if started {
		h.runWorker(w)
	}
}

func (h *Hub) runWorker(w *worker) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for ev := range w.queue {
			h.deliver(w.consumer, ev)
		}
	}()
}

func (h *Hub) deliver(c Consumer, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("Consumer panicked")
		}
	}()
	c.OnEvent(ev)
}

// notifyConsumers queues ev for every interested consumer.
func (h *Hub) notifyConsumers(ev models.Event) {
	h.consumersMu.Lock()
	workers := make([]*worker, len(h.consumers))
	copy(workers, h.consumers)
	h.consumersMu.Unlock()

	for _, w := range workers {
		accounts := w.consumer.Accounts()
		if len(accounts) == 0 || contains(accounts, ev.AccountID) {
			w.queue <- ev
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// GetSubscriberCount returns the number of subscribers for an account.
func (h *Hub) GetSubscriberCount(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[accountID])
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.mu.RLock()
	subs := 0
	for _, s := range h.subscribers {
		subs += len(s)
	}
	h.mu.RUnlock()

	h.consumersMu.Lock()
	consumers := len(h.consumers)
	h.consumersMu.Unlock()

	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()
	return HubMetrics{
		EventsReceived:  h.eventsReceived,
		EventsBroadcast: h.eventsBroadcast,
		EventsDropped:   h.eventsDropped,
		Subscribers:     subs,
		Consumers:       consumers,
	}
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	EventsReceived  uint64
	EventsBroadcast uint64
	EventsDropped   uint64
	Subscribers     int
	Consumers       int
}

// IsStarted returns whether the hub is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started && !h.stopped
}

// ConsumerFunc is a function adapter for the Consumer interface.
type ConsumerFunc struct {
	accounts []string
	fn       func(models.Event)
}

// NewConsumerFunc creates a new ConsumerFunc.
func NewConsumerFunc(accounts []string, fn func(models.Event)) *ConsumerFunc {
	return &ConsumerFunc{accounts: accounts, fn: fn}
}

// OnEvent implements Consumer.
func (c *ConsumerFunc) OnEvent(ev models.Event) {
	if c.fn != nil {
		c.fn(ev)
	}
}

// Accounts implements Consumer.
func (c *ConsumerFunc) Accounts() []string {
	return c.accounts
}
