package redis

import (
	"context"
	"sync"

	"github.com/italolelis/segment_coordinator/internal/coordination"
	"github.com/italolelis/segment_coordinator/internal/logctx"
	"github.com/italolelis/segment_coordinator/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// DefaultPoolCapacity bounds the idle subscriber pool.
const DefaultPoolCapacity = 5

// subscriberConn is one dedicated pub/sub connection. A single reader
// goroutine drains the connection for its whole life and dispatches
// messages to whichever handlers are currently registered, so the
// connection can be reused across subscriptions without leaking a
// goroutine per subscribe.
type subscriberConn struct {
	pubsub *redis.PubSub

	mu       sync.Mutex
	handlers map[string]func(payload string)
	closed   bool
}

func newSubscriberConn(ctx context.Context, client redis.UniversalClient) *subscriberConn {
	c := &subscriberConn{
		pubsub:   client.Subscribe(ctx),
		handlers: make(map[string]func(string)),
	}

	go c.readLoop()

	return c
}

func (c *subscriberConn) readLoop() {
	// Channel is closed by pubsub.Close, which ends the loop.
	for msg := range c.pubsub.Channel() {
		c.mu.Lock()
		handler := c.handlers[msg.Channel]
		c.mu.Unlock()

		if handler != nil {
			handler(msg.Payload)
		}
	}
}

func (c *subscriberConn) subscribe(ctx context.Context, channel string, handler func(payload string)) error {
	c.mu.Lock()
	c.handlers[channel] = handler
	c.mu.Unlock()

	if err := c.pubsub.Subscribe(ctx, channel); err != nil {
		c.mu.Lock()
		delete(c.handlers, channel)
		c.mu.Unlock()

		return err
	}

	return nil
}

func (c *subscriberConn) unsubscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	delete(c.handlers, channel)
	c.mu.Unlock()

	return c.pubsub.Unsubscribe(ctx, channel)
}

func (c *subscriberConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// healthy reports whether the connection can still be reused. It pings
// the server, so it must not be called while holding the pool mutex.
func (c *subscriberConn) healthy(ctx context.Context) bool {
	if c.isClosed() {
		return false
	}

	return c.pubsub.Ping(ctx) == nil
}

func (c *subscriberConn) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil
	}

	c.closed = true
	c.mu.Unlock()

	return c.pubsub.Close()
}

// SubscriberPool implements coordination.NotificationHub with a bounded
// pool of idle pub/sub connections. Only idle connections are capped;
// connections in active use are not pooled and their number is
// unbounded, so acquiring never blocks on pool capacity.
type SubscriberPool struct {
	client    redis.UniversalClient
	capacity  int
	telemetry *telemetry.Telemetry

	mu       sync.Mutex
	idle     []*subscriberConn
	disposed bool
}

func NewSubscriberPool(client redis.UniversalClient, capacity int, tel *telemetry.Telemetry) *SubscriberPool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}

	return &SubscriberPool{
		client:    client,
		capacity:  capacity,
		telemetry: tel,
	}
}

// IdleSize returns the current number of idle pooled connections.
func (p *SubscriberPool) IdleSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.idle)
}

// Subscribe acquires a connection, subscribes it to channel, and routes
// every message on that channel to handler. The returned cancel
// function unsubscribes and returns the connection to the pool; it is
// single-shot and never fails, teardown errors are logged and swallowed.
func (p *SubscriberPool) Subscribe(ctx context.Context, channel string, handler func(payload string)) (func(), error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	instrumented := func(payload string) {
		p.telemetry.RecordNotificationDelivered()
		handler(payload)
	}

	if err := conn.subscribe(ctx, channel, instrumented); err != nil {
		p.release(ctx, conn)

		return nil, &coordination.SubscriptionError{Channel: channel, Err: err}
	}

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			// Teardown runs on its own context: the subscriber's ctx is
			// typically already done when it cancels.
			teardownCtx := context.Background()

			if err := conn.unsubscribe(teardownCtx, channel); err != nil {
				logctx.LoggerFromContext(ctx).Warn("failed to unsubscribe channel", "channel", channel, "err", err)
			}

			p.release(teardownCtx, conn)
		})
	}

	return cancel, nil
}

// Close disposes the pool: all idle connections are disconnected
// concurrently and later releases disconnect instead of pooling.
// Individual disconnect failures are swallowed so one bad connection
// cannot block the rest of shutdown.
func (p *SubscriberPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()

		return nil
	}

	p.disposed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	p.telemetry.SetSubscriberPoolIdle(0)

	var g errgroup.Group

	for _, conn := range idle {
		g.Go(func() error {
			p.closeQuietly(ctx, conn)

			return nil
		})
	}

	return g.Wait()
}

// acquire pops a healthy idle connection or connects a new one. It
// fails fast after Close; a disposed pool must not hand out
// connections it can no longer reclaim.
func (p *SubscriberPool) acquire(ctx context.Context) (*subscriberConn, error) {
	for {
		p.mu.Lock()
		if p.disposed {
			p.mu.Unlock()

			return nil, coordination.ErrHubClosed
		}

		if len(p.idle) == 0 {
			p.mu.Unlock()

			break
		}

		conn := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		idleSize := len(p.idle)
		p.mu.Unlock()

		p.telemetry.SetSubscriberPoolIdle(int64(idleSize))

		if conn.healthy(ctx) {
			return conn, nil
		}

		p.closeQuietly(ctx, conn)
	}

	conn := newSubscriberConn(ctx, p.client)
	p.telemetry.RecordSubscriberCreated()

	return conn, nil
}

// release returns a connection to the idle pool, or disconnects it when
// the pool is disposed, the connection is dead, or the pool is full.
func (p *SubscriberPool) release(ctx context.Context, conn *subscriberConn) {
	p.mu.Lock()
	if !p.disposed && !conn.isClosed() && len(p.idle) < p.capacity {
		p.idle = append(p.idle, conn)
		idleSize := len(p.idle)
		p.mu.Unlock()

		p.telemetry.SetSubscriberPoolIdle(int64(idleSize))

		return
	}
	p.mu.Unlock()

	p.closeQuietly(ctx, conn)
}

func (p *SubscriberPool) closeQuietly(ctx context.Context, conn *subscriberConn) {
	if conn.isClosed() {
		return
	}

	if err := conn.close(); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to disconnect subscriber", "err", err)
	}

	p.telemetry.RecordSubscriberDisconnected()
}
