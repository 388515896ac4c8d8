// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package uaconnect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// monitoredItem is one caller's registration to be notified of changes
// to one node within one subscription. monitoredItemID is meaningful
// only while active is true.
type monitoredItem struct {
	node            NodeID
	cb              MonitoredItemCallback
	params          MonitoredItemParams
	active          bool
	monitoredItemID uint32
}

// subscription is a named group of monitored items sharing one
// server-side publishing context. subscriptionID is meaningful only
// while active is true. Parameter changes apply only to subscriptions
// that have not been activated yet.
type subscription struct {
	name           string
	params         SubscriptionParams
	active         bool
	subscriptionID uint32
	items          map[string][]*monitoredItem // NodeID.Key() -> registrations
}

func (s *subscription) itemCount() int {
	n := 0
	for _, items := range s.items {
		n += len(items)
	}
	return n
}

// ServerConnection manages one session to one OPC UA server. Many
// concurrent callers issue reads, writes, and monitored-item requests;
// the connection serializes them onto a single session owned by a
// background worker, survives disconnects, and re-establishes the
// session and all registered monitored items transparently.
//
// Synchronous Read and Write execute on the caller's goroutine under
// the session lock. Asynchronous operations are queued and processed
// by the worker in strict FIFO order; their callbacks run on the
// worker goroutine.
type ServerConnection struct {
	endpoint string
	opts     *connectionOptions
	logger   *slog.Logger
	metrics  *Metrics
	factory  DriverFactory

	queue *requestQueue

	// sessMu guards the driver, the connected flag, and the whole
	// subscription registry. The worker and synchronous callers
	// interleave on this lock, never run concurrently.
	sessMu        sync.Mutex
	driver        SessionDriver
	connected     bool
	subscriptions map[string]*subscription

	state   atomic.Int32
	closeCh chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewServerConnection creates a connection manager for the given
// endpoint and starts its worker. The first connect attempt happens in
// the background; synchronous operations connect on demand.
func NewServerConnection(endpoint string, opts ...Option) (*ServerConnection, error) {
	if endpoint == "" {
		return nil, ErrInvalidEndpoint
	}

	options := defaultConnectionOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := &ServerConnection{
		endpoint:      endpoint,
		opts:          options,
		logger:        options.logger.With(slog.String("endpoint", endpoint)),
		metrics:       NewMetrics(),
		queue:         newRequestQueue(),
		subscriptions: make(map[string]*subscription),
		closeCh:       make(chan struct{}),
	}

	c.factory = options.driverFactory
	if c.factory == nil {
		c.factory = func() (SessionDriver, error) {
			return newGopcuaDriver(endpoint, options)
		}
	}

	driver, err := c.factory()
	if err != nil {
		return nil, fmt.Errorf("uaconnect: creating session driver: %w", err)
	}
	c.driver = driver
	c.state.Store(int32(StateDisconnected))

	c.wg.Add(1)
	go c.worker()

	return c, nil
}

// Endpoint returns the endpoint URL this connection manages.
func (c *ServerConnection) Endpoint() string {
	return c.endpoint
}

// State returns the current connection state.
func (c *ServerConnection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Metrics returns the connection metrics.
func (c *ServerConnection) Metrics() *Metrics {
	return c.metrics
}

// QueueDepth returns the number of queued requests not yet processed.
func (c *ServerConnection) QueueDepth() int {
	return c.queue.len()
}

// Read reads the value of a node synchronously. On a connection-fatal
// error the connection is rebuilt and the read retried exactly once.
func (c *ServerConnection) Read(ctx context.Context, node NodeID) (DataValue, error) {
	if c.closed.Load() {
		return DataValue{}, ErrClosed
	}

	start := time.Now()
	c.metrics.RequestsTotal.Add(1)

	c.sessMu.Lock()
	dv, err := c.readLocked(ctx, node)
	c.sessMu.Unlock()

	c.metrics.Latency.Observe(time.Since(start))
	if err != nil {
		c.metrics.RequestsErrors.Add(1)
		return DataValue{}, err
	}
	c.metrics.RequestsSuccess.Add(1)
	return dv, nil
}

// Write writes the value of a node synchronously. On a connection-fatal
// error the connection is rebuilt and the write retried exactly once.
func (c *ServerConnection) Write(ctx context.Context, node NodeID, value Variant) error {
	if c.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	c.metrics.RequestsTotal.Add(1)

	c.sessMu.Lock()
	err := c.writeLocked(ctx, node, value)
	c.sessMu.Unlock()

	c.metrics.Latency.Observe(time.Since(start))
	if err != nil {
		c.metrics.RequestsErrors.Add(1)
		return err
	}
	c.metrics.RequestsSuccess.Add(1)
	return nil
}

// ReadAsync queues a read. Exactly one of callback.Success or
// callback.Failure is eventually invoked on the worker goroutine,
// unless the connection is closed first.
func (c *ServerConnection) ReadAsync(node NodeID, callback ReadCallback) error {
	if callback == nil {
		return ErrNilCallback
	}
	if !c.queue.push(readRequest{node: node, cb: callback}) {
		return ErrClosed
	}
	return nil
}

// WriteAsync queues a write. The value is copied before the call
// returns. Exactly one of callback.Success or callback.Failure is
// eventually invoked on the worker goroutine, unless the connection is
// closed first.
func (c *ServerConnection) WriteAsync(node NodeID, value Variant, callback WriteCallback) error {
	if callback == nil {
		return ErrNilCallback
	}
	if !c.queue.push(writeRequest{node: node, value: value.Clone(), cb: callback}) {
		return ErrClosed
	}
	return nil
}

// MonitoredItemOption configures a monitored item registration.
type MonitoredItemOption func(*MonitoredItemParams)

// WithSamplingInterval sets the requested sampling interval.
func WithSamplingInterval(d time.Duration) MonitoredItemOption {
	return func(p *MonitoredItemParams) {
		p.SamplingInterval = d
	}
}

// WithQueueSize sets the requested server-side queue size.
func WithQueueSize(size uint32) MonitoredItemOption {
	return func(p *MonitoredItemParams) {
		p.QueueSize = size
	}
}

// WithDiscardOldest sets whether the server discards the oldest or the
// newest notification when the item's queue overflows.
func WithDiscardOldest(discard bool) MonitoredItemOption {
	return func(p *MonitoredItemParams) {
		p.DiscardOldest = discard
	}
}

// AddMonitoredItem queues the registration of a monitored item for the
// given node in the named subscription. Registration is idempotent per
// (subscription, node, callback) triple; a duplicate is silently
// ignored when processed. The callback receives data changes until the
// item is removed, and a Failure whenever the item could not be
// activated or an active item is lost with the session.
func (c *ServerConnection) AddMonitoredItem(subscriptionName string, node NodeID, callback MonitoredItemCallback, opts ...MonitoredItemOption) error {
	if callback == nil {
		return ErrNilCallback
	}

	params := MonitoredItemParams{
		SamplingInterval: DefaultSamplingInterval,
		QueueSize:        DefaultQueueSize,
		DiscardOldest:    true,
	}
	for _, opt := range opts {
		opt(&params)
	}

	if !c.queue.push(addItemRequest{
		subscription: subscriptionName,
		node:         node,
		cb:           callback,
		params:       params,
	}) {
		return ErrClosed
	}
	return nil
}

// RemoveMonitoredItem queues the removal of a monitored item
// registration. Removing a registration that does not exist is a
// no-op. The callback identifies which registration to remove.
func (c *ServerConnection) RemoveMonitoredItem(subscriptionName string, node NodeID, callback MonitoredItemCallback) error {
	if callback == nil {
		return ErrNilCallback
	}
	if !c.queue.push(removeItemRequest{
		subscription: subscriptionName,
		node:         node,
		cb:           callback,
	}) {
		return ErrClosed
	}
	return nil
}

// PublishingInterval returns the publishing interval configured for
// the named subscription.
func (c *ServerConnection) PublishingInterval(subscriptionName string) time.Duration {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.subscriptionLocked(subscriptionName).params.PublishingInterval
}

// SetPublishingInterval sets the publishing interval for the named
// subscription. Effective only if the subscription has not been
// activated yet.
func (c *ServerConnection) SetPublishingInterval(subscriptionName string, interval time.Duration) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	sub := c.subscriptionLocked(subscriptionName)
	sub.params.PublishingInterval = interval
	c.warnIfActiveLocked(sub, "publishing interval")
}

// LifetimeCount returns the lifetime count configured for the named
// subscription.
func (c *ServerConnection) LifetimeCount(subscriptionName string) uint32 {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.subscriptionLocked(subscriptionName).params.LifetimeCount
}

// SetLifetimeCount sets the lifetime count for the named subscription.
// Effective only if the subscription has not been activated yet.
func (c *ServerConnection) SetLifetimeCount(subscriptionName string, count uint32) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	sub := c.subscriptionLocked(subscriptionName)
	sub.params.LifetimeCount = count
	c.warnIfActiveLocked(sub, "lifetime count")
}

// MaxKeepAliveCount returns the max keep-alive count configured for
// the named subscription.
func (c *ServerConnection) MaxKeepAliveCount(subscriptionName string) uint32 {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.subscriptionLocked(subscriptionName).params.MaxKeepAliveCount
}

// SetMaxKeepAliveCount sets the max keep-alive count for the named
// subscription. Effective only if the subscription has not been
// activated yet.
func (c *ServerConnection) SetMaxKeepAliveCount(subscriptionName string, count uint32) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	sub := c.subscriptionLocked(subscriptionName)
	sub.params.MaxKeepAliveCount = count
	c.warnIfActiveLocked(sub, "max keep-alive count")
}

// Close shuts the connection down: it stops the worker, abandons any
// queued requests without invoking their callbacks, and tears down the
// session. Close is idempotent.
func (c *ServerConnection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	abandoned := c.queue.len()
	close(c.closeCh)
	c.queue.close()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.connectTimeout)
	defer cancel()

	c.sessMu.Lock()
	defer c.sessMu.Unlock()

	var err error
	if c.driver != nil {
		err = c.driver.Close(ctx)
		c.driver = nil
	}
	c.connected = false
	c.state.Store(int32(StateClosed))
	c.logger.Debug("connection closed", slog.Int("abandoned_requests", abandoned))
	return err
}

// worker is the single goroutine that owns the session for queued
// operations: it pumps protocol background work, drains the request
// queue in FIFO order, and runs the reconnect algorithm on fatal
// errors.
func (c *ServerConnection) worker() {
	defer c.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.sessMu.Lock()
		if c.connected {
			if err := c.driver.Iterate(ctx, c.opts.idleWait); IsConnectionFatal(err) {
				c.logger.Warn("background iteration failed",
					slog.String("status", StatusFromError(err).String()))
				if rerr := c.recoverLocked(ctx, StatusFromError(err)); rerr != nil {
					c.logger.Error("reconnect failed", slog.String("error", rerr.Error()))
				}
			}
		} else if err := c.ensureConnectedLocked(ctx); err != nil {
			c.logger.Debug("connect attempt failed", slog.String("error", err.Error()))
		}
		c.sessMu.Unlock()

		req := c.queue.popWait(c.opts.idleWait)
		if req == nil {
			continue
		}

		select {
		case <-c.closeCh:
			// Shutdown abandons queued requests; no callbacks.
			return
		default:
		}
		c.dispatch(ctx, req)
	}
}

// dispatch processes one queued request. Completion callbacks run
// without the session lock held, so a callback enqueueing new work
// cannot deadlock.
func (c *ServerConnection) dispatch(ctx context.Context, req request) {
	switch r := req.(type) {
	case readRequest:
		c.metrics.RequestsTotal.Add(1)
		start := time.Now()
		c.sessMu.Lock()
		dv, err := c.readLocked(ctx, r.node)
		c.sessMu.Unlock()
		c.metrics.Latency.Observe(time.Since(start))
		if err != nil {
			c.metrics.RequestsErrors.Add(1)
			c.safeCall(func() { r.cb.Failure(StatusFromError(err)) })
		} else {
			c.metrics.RequestsSuccess.Add(1)
			c.safeCall(func() { r.cb.Success(dv) })
		}

	case writeRequest:
		c.metrics.RequestsTotal.Add(1)
		start := time.Now()
		c.sessMu.Lock()
		err := c.writeLocked(ctx, r.node, r.value)
		c.sessMu.Unlock()
		c.metrics.Latency.Observe(time.Since(start))
		if err != nil {
			c.metrics.RequestsErrors.Add(1)
			c.safeCall(func() { r.cb.Failure(StatusFromError(err)) })
		} else {
			c.metrics.RequestsSuccess.Add(1)
			c.safeCall(func() { r.cb.Success() })
		}

	case addItemRequest:
		c.sessMu.Lock()
		c.addItemLocked(ctx, r)
		c.sessMu.Unlock()

	case removeItemRequest:
		c.sessMu.Lock()
		c.removeItemLocked(ctx, r)
		c.sessMu.Unlock()
	}
}

// readLocked performs a read with a single reconnect-and-retry on
// connection-fatal errors. Caller holds the session lock.
func (c *ServerConnection) readLocked(ctx context.Context, node NodeID) (DataValue, error) {
	if err := c.ensureConnectedLocked(ctx); err != nil {
		return DataValue{}, err
	}
	dv, err := c.driver.Read(ctx, node)
	if IsConnectionFatal(err) {
		if rerr := c.recoverLocked(ctx, StatusFromError(err)); rerr == nil {
			dv, err = c.driver.Read(ctx, node)
		}
	}
	return dv, err
}

// writeLocked performs a write with a single reconnect-and-retry on
// connection-fatal errors. Caller holds the session lock.
func (c *ServerConnection) writeLocked(ctx context.Context, node NodeID, value Variant) error {
	if err := c.ensureConnectedLocked(ctx); err != nil {
		return err
	}
	err := c.driver.Write(ctx, node, value)
	if IsConnectionFatal(err) {
		if rerr := c.recoverLocked(ctx, StatusFromError(err)); rerr == nil {
			err = c.driver.Write(ctx, node, value)
		}
	}
	return err
}

// addItemLocked registers a monitored item and tries to activate it.
// A duplicate (subscription, node, callback) triple is ignored. On
// activation failure the registration is kept inactive, its callback
// receives a Failure, and already-active sibling items are untouched.
func (c *ServerConnection) addItemLocked(ctx context.Context, r addItemRequest) {
	sub := c.subscriptionLocked(r.subscription)
	key := r.node.Key()
	for _, existing := range sub.items[key] {
		if existing.cb == r.cb {
			c.logger.Debug("monitored item already registered",
				slog.String("subscription", r.subscription),
				slog.String("node", key))
			return
		}
	}

	item := &monitoredItem{
		node:   r.node,
		cb:     r.cb,
		params: r.params,
	}
	sub.items[key] = append(sub.items[key], item)
	c.metrics.MonitoredItems.Add(1)

	if err := c.ensureConnectedLocked(ctx); err != nil {
		if !item.active {
			c.safeCall(func() { item.cb.Failure(StatusBadServerNotConnected) })
		}
		return
	}
	if item.active {
		// Activated by the restore sweep of a reconnect that just
		// happened inside ensureConnectedLocked.
		return
	}

	err := c.activateItemLocked(ctx, sub, item)
	if err == nil {
		return
	}
	if IsConnectionFatal(err) {
		// Recovery re-attempts every registered item, this one
		// included, and notifies the callbacks of any it cannot
		// restore; no extra notification here.
		if rerr := c.recoverLocked(ctx, StatusFromError(err)); rerr != nil {
			c.logger.Error("reconnect failed", slog.String("error", rerr.Error()))
		}
		return
	}
	c.logger.Warn("monitored item activation failed",
		slog.String("subscription", r.subscription),
		slog.String("node", key),
		slog.String("status", StatusFromError(err).String()))
	c.safeCall(func() { item.cb.Failure(StatusFromError(err)) })
}

// removeItemLocked removes a monitored item registration. Server-side
// deletion is best-effort; there is nothing useful to do locally when
// it fails. When the last item of a subscription goes away the
// subscription is deactivated as well.
func (c *ServerConnection) removeItemLocked(ctx context.Context, r removeItemRequest) {
	sub, ok := c.subscriptions[r.subscription]
	if !ok {
		return
	}
	key := r.node.Key()
	items := sub.items[key]
	idx := -1
	for i, it := range items {
		if it.cb == r.cb {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	item := items[idx]
	if item.active && c.connected {
		if err := c.driver.DeleteMonitoredItem(ctx, sub.subscriptionID, item.monitoredItemID); err != nil {
			c.logger.Warn("deleting monitored item failed",
				slog.String("subscription", r.subscription),
				slog.String("node", key),
				slog.String("error", err.Error()))
		}
	}
	item.active = false

	items = append(items[:idx], items[idx+1:]...)
	if len(items) == 0 {
		delete(sub.items, key)
	} else {
		sub.items[key] = items
	}
	c.metrics.MonitoredItems.Add(-1)

	if sub.itemCount() == 0 && sub.active {
		if c.connected {
			if err := c.driver.DeleteSubscription(ctx, sub.subscriptionID); err != nil {
				c.logger.Warn("deleting subscription failed",
					slog.String("subscription", r.subscription),
					slog.String("error", err.Error()))
			}
		}
		sub.active = false
		sub.subscriptionID = 0
		c.metrics.ActiveSubscriptions.Add(-1)
	}
}

// activateItemLocked activates the owning subscription first if
// needed, then the item itself. Caller holds the session lock.
func (c *ServerConnection) activateItemLocked(ctx context.Context, sub *subscription, item *monitoredItem) error {
	if !sub.active {
		id, err := c.driver.CreateSubscription(ctx, sub.params)
		if err != nil {
			return err
		}
		sub.active = true
		sub.subscriptionID = id
		c.metrics.ActiveSubscriptions.Add(1)
		c.logger.Debug("subscription activated",
			slog.String("subscription", sub.name),
			slog.Uint64("id", uint64(id)))
	}

	id, err := c.driver.CreateMonitoredItem(ctx, sub.subscriptionID, item.node, item.params, c.notifyFunc(item))
	if err != nil {
		return err
	}
	item.active = true
	item.monitoredItemID = id
	c.logger.Debug("monitored item activated",
		slog.String("subscription", sub.name),
		slog.String("node", item.node.Key()),
		slog.Uint64("id", uint64(id)))
	return nil
}

// notifyFunc adapts a monitored item's callback for the driver. The
// driver calls it during Iterate, with the session lock held.
func (c *ServerConnection) notifyFunc(item *monitoredItem) NotifyFunc {
	return func(node NodeID, value DataValue) {
		c.metrics.NotificationsReceived.Add(1)
		c.safeCall(func() { item.cb.Notify(node, value) })
	}
}

// recoverLocked is the reconnect algorithm. Caller holds the session
// lock, so nothing can interleave:
//
//  1. Every active subscription and item is marked inactive; each item
//     that was active gets one Failure with the triggering status.
//  2. The old driver is discarded and a fresh one built, since the
//     underlying client may be unable to resume after certain errors.
//  3. On successful connect, subscriptions that still hold items are
//     re-activated before their items, each item independently so one
//     bad node cannot block restoration of the rest.
//
// Whether recovery succeeds or not, every registered item that is not
// active when it returns has received exactly one Failure for this
// recovery cycle.
func (c *ServerConnection) recoverLocked(ctx context.Context, cause StatusCode) error {
	c.metrics.Reconnections.Add(1)
	c.state.Store(int32(StateReconnecting))
	c.logger.Warn("session lost, rebuilding",
		slog.String("status", cause.String()))

	notified := make(map[*monitoredItem]bool)
	for _, sub := range c.subscriptions {
		if sub.active {
			sub.active = false
			sub.subscriptionID = 0
			c.metrics.ActiveSubscriptions.Add(-1)
		}
		for _, items := range sub.items {
			for _, item := range items {
				if !item.active {
					continue
				}
				item.active = false
				item.monitoredItemID = 0
				notified[item] = true
				cb := item.cb
				c.safeCall(func() { cb.Failure(cause) })
			}
		}
	}

	c.connected = false
	if c.driver != nil {
		closeCtx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
		if err := c.driver.Close(closeCtx); err != nil {
			c.logger.Debug("closing dead driver", slog.String("error", err.Error()))
		}
		cancel()
		c.driver = nil
	}

	driver, err := c.factory()
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.notifyUnrestoredLocked(notified, cause)
		return fmt.Errorf("uaconnect: rebuilding session driver: %w", err)
	}
	c.driver = driver

	if err := c.connectLocked(ctx); err != nil {
		c.notifyUnrestoredLocked(notified, cause)
		return err
	}

	if err := c.restoreItemsLocked(ctx, notified); err != nil {
		c.notifyUnrestoredLocked(notified, StatusFromError(err))
		return err
	}

	c.logger.Info("session re-established")
	return nil
}

// restoreItemsLocked re-activates every registered monitored item that
// is not active, subscriptions before their items. Failures are
// isolated per item; only a connection-fatal error aborts the sweep.
// Callbacks notified here are recorded in notified when it is non-nil.
// Caller holds the session lock.
func (c *ServerConnection) restoreItemsLocked(ctx context.Context, notified map[*monitoredItem]bool) error {
	for _, sub := range c.subscriptions {
		if sub.itemCount() == 0 {
			continue
		}
		for key, items := range sub.items {
			for _, item := range items {
				if item.active {
					continue
				}
				err := c.activateItemLocked(ctx, sub, item)
				if err == nil {
					continue
				}
				c.logger.Error("re-activating monitored item failed",
					slog.String("subscription", sub.name),
					slog.String("node", key),
					slog.String("status", StatusFromError(err).String()))
				if notified != nil {
					notified[item] = true
				}
				cb := item.cb
				status := StatusFromError(err)
				c.safeCall(func() { cb.Failure(status) })
				if IsConnectionFatal(err) {
					// Session died again mid-restore; the next
					// operation retries from scratch.
					return err
				}
			}
		}
	}
	return nil
}

// notifyUnrestoredLocked delivers one Failure to every registered item
// that is still inactive and was not already notified during this
// recovery cycle. Caller holds the session lock.
func (c *ServerConnection) notifyUnrestoredLocked(notified map[*monitoredItem]bool, status StatusCode) {
	for _, sub := range c.subscriptions {
		for _, items := range sub.items {
			for _, item := range items {
				if item.active || notified[item] {
					continue
				}
				notified[item] = true
				cb := item.cb
				c.safeCall(func() { cb.Failure(status) })
			}
		}
	}
}

// ensureConnectedLocked connects the driver if necessary, rebuilding
// it first if a previous recovery left the connection without one. A
// successful connect restores any registered monitored items that a
// failed recovery left inactive. Caller holds the session lock.
func (c *ServerConnection) ensureConnectedLocked(ctx context.Context) error {
	if c.connected {
		return nil
	}
	if c.driver == nil {
		driver, err := c.factory()
		if err != nil {
			return fmt.Errorf("uaconnect: rebuilding session driver: %w", err)
		}
		c.driver = driver
	}
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	return c.restoreItemsLocked(ctx, nil)
}

// connectLocked connects the current driver. Caller holds the session
// lock.
func (c *ServerConnection) connectLocked(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))
	connectCtx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()

	if err := c.driver.Connect(connectCtx); err != nil {
		c.state.Store(int32(StateDisconnected))
		return err
	}
	c.connected = true
	c.state.Store(int32(StateConnected))
	c.logger.Info("session established")
	return nil
}

// subscriptionLocked returns the subscription record for the given
// name, creating an inactive one with default parameters on first use.
// Caller holds the session lock.
func (c *ServerConnection) subscriptionLocked(name string) *subscription {
	sub, ok := c.subscriptions[name]
	if !ok {
		sub = &subscription{
			name:   name,
			params: c.opts.subscriptionDefaults,
			items:  make(map[string][]*monitoredItem),
		}
		c.subscriptions[name] = sub
	}
	return sub
}

func (c *ServerConnection) warnIfActiveLocked(sub *subscription, what string) {
	if sub.active {
		c.logger.Warn("subscription parameter change has no effect on an active subscription",
			slog.String("subscription", sub.name),
			slog.String("parameter", what))
	}
}

// safeCall invokes a callback and swallows any panic. A panicking
// callback must never take the worker down.
func (c *ServerConnection) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("callback panicked", slog.Any("panic", r))
		}
	}()
	fn()
}
