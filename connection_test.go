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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDriver is an instrumented in-memory SessionDriver. A single
// instance is shared across factory rebuilds so tests can observe
// behavior spanning reconnect cycles; the factory resets the
// per-session state on each build, like a real driver replacement
// would.
type mockDriver struct {
	mu sync.Mutex

	builds   int
	connects int

	// scripted failures, popped per call
	connectErrs []error
	readErrs    []error
	writeErrs   []error
	iterErrs    []error

	// node key -> remaining activation failures
	itemFailures map[string]int
	// node key -> remaining activation failures that kill the session
	itemFatalFailures map[string]int

	// concurrency instrumentation
	inflight    int32
	maxInflight int32

	ops []string

	connected  bool
	nextSubID  uint32
	nextItemID uint32
	activeSubs map[uint32]bool
	subParams  map[uint32]SubscriptionParams
	notifiers  map[uint32]NotifyFunc
	itemNodes  map[uint32]NodeID
	pending    []func()

	values map[string]Variant
}

func newMockDriver() *mockDriver {
	m := &mockDriver{
		itemFailures:      make(map[string]int),
		itemFatalFailures: make(map[string]int),
		values:            make(map[string]Variant),
	}
	m.resetSession()
	return m
}

func (m *mockDriver) resetSession() {
	m.connected = false
	m.activeSubs = make(map[uint32]bool)
	m.subParams = make(map[uint32]SubscriptionParams)
	m.notifiers = make(map[uint32]NotifyFunc)
	m.itemNodes = make(map[uint32]NodeID)
	m.pending = nil
}

// factory returns a DriverFactory that rebuilds the mock's session
// state, counting builds.
func (m *mockDriver) factory() DriverFactory {
	return func() (SessionDriver, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.builds++
		m.resetSession()
		return m, nil
	}
}

func (m *mockDriver) enter() func() {
	n := atomic.AddInt32(&m.inflight, 1)
	for {
		max := atomic.LoadInt32(&m.maxInflight)
		if n <= max || atomic.CompareAndSwapInt32(&m.maxInflight, max, n) {
			break
		}
	}
	time.Sleep(100 * time.Microsecond)
	return func() { atomic.AddInt32(&m.inflight, -1) }
}

func (m *mockDriver) record(op string) {
	m.mu.Lock()
	m.ops = append(m.ops, op)
	m.mu.Unlock()
}

func (m *mockDriver) opCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (m *mockDriver) opsSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ops))
	copy(out, m.ops)
	return out
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (m *mockDriver) Connect(ctx context.Context) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := popErr(&m.connectErrs); err != nil {
		return err
	}
	m.connected = true
	m.connects++
	return nil
}

func (m *mockDriver) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *mockDriver) Read(ctx context.Context, node NodeID) (DataValue, error) {
	defer m.enter()()
	m.record("read " + node.Key())
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := popErr(&m.readErrs); err != nil {
		return DataValue{}, err
	}
	return DataValue{
		Value:      m.values[node.Key()],
		StatusCode: StatusGood,
	}, nil
}

func (m *mockDriver) Write(ctx context.Context, node NodeID, value Variant) error {
	defer m.enter()()
	m.record("write " + node.Key())
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := popErr(&m.writeErrs); err != nil {
		return err
	}
	m.values[node.Key()] = value
	return nil
}

func (m *mockDriver) CreateSubscription(ctx context.Context, params SubscriptionParams) (uint32, error) {
	defer m.enter()()
	m.record("create-sub")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	m.activeSubs[m.nextSubID] = true
	m.subParams[m.nextSubID] = params
	return m.nextSubID, nil
}

func (m *mockDriver) DeleteSubscription(ctx context.Context, subscriptionID uint32) error {
	defer m.enter()()
	m.record("delete-sub")
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.activeSubs, subscriptionID)
	return nil
}

func (m *mockDriver) CreateMonitoredItem(ctx context.Context, subscriptionID uint32, node NodeID, params MonitoredItemParams, notify NotifyFunc) (uint32, error) {
	defer m.enter()()
	m.record("create-item " + node.Key())
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.activeSubs[subscriptionID] {
		return 0, StatusBadSubscriptionIdInvalid
	}
	if m.itemFatalFailures[node.Key()] > 0 {
		m.itemFatalFailures[node.Key()]--
		return 0, StatusBadConnectionClosed
	}
	if m.itemFailures[node.Key()] > 0 {
		m.itemFailures[node.Key()]--
		return 0, StatusBadMonitoredItemIdInvalid
	}
	m.nextItemID++
	m.notifiers[m.nextItemID] = notify
	m.itemNodes[m.nextItemID] = node
	return m.nextItemID, nil
}

func (m *mockDriver) DeleteMonitoredItem(ctx context.Context, subscriptionID, monitoredItemID uint32) error {
	defer m.enter()()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "delete-item "+m.itemNodes[monitoredItemID].Key())
	delete(m.notifiers, monitoredItemID)
	delete(m.itemNodes, monitoredItemID)
	return nil
}

func (m *mockDriver) Iterate(ctx context.Context, timeout time.Duration) error {
	defer m.enter()()
	m.mu.Lock()
	if err := popErr(&m.iterErrs); err != nil {
		m.mu.Unlock()
		return err
	}
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, deliver := range pending {
		deliver()
	}
	return nil
}

// pushNotification queues a data change for every registered item on
// the node; it is delivered on the next Iterate.
func (m *mockDriver) pushNotification(node NodeID, dv DataValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, notify := range m.notifiers {
		if m.itemNodes[id].Key() == node.Key() {
			n := notify
			m.pending = append(m.pending, func() { n(node, dv) })
		}
	}
}

// recording callbacks

type recordReadCB struct {
	mu        sync.Mutex
	successes []DataValue
	failures  []StatusCode
}

func (c *recordReadCB) Success(v DataValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, v)
}

func (c *recordReadCB) Failure(s StatusCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, s)
}

func (c *recordReadCB) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.successes), len(c.failures)
}

type recordWriteCB struct {
	mu        sync.Mutex
	successes int
	failures  []StatusCode
}

func (c *recordWriteCB) Success() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes++
}

func (c *recordWriteCB) Failure(s StatusCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, s)
}

type recordItemCB struct {
	mu       sync.Mutex
	notifies []DataValue
	failures []StatusCode
}

func (c *recordItemCB) Notify(node NodeID, v DataValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifies = append(c.notifies, v)
}

func (c *recordItemCB) Failure(s StatusCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, s)
}

func (c *recordItemCB) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notifies), len(c.failures)
}

// test helpers

func newTestConnection(t *testing.T, mock *mockDriver) *ServerConnection {
	t.Helper()
	conn, err := NewServerConnection("opc.tcp://testserver:4840",
		WithDriverFactory(mock.factory()),
		WithIdleWait(2*time.Millisecond),
		WithConnectTimeout(time.Second),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met in time: %s", msg)
}

func TestNewServerConnectionValidatesEndpoint(t *testing.T) {
	_, err := NewServerConnection("")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

func TestNilCallbacksRejected(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewNumericNodeID(2, 1)

	assert.ErrorIs(t, conn.ReadAsync(node, nil), ErrNilCallback)
	assert.ErrorIs(t, conn.WriteAsync(node, NewVariant(int32(1)), nil), ErrNilCallback)
	assert.ErrorIs(t, conn.AddMonitoredItem("s1", node, nil), ErrNilCallback)
	assert.ErrorIs(t, conn.RemoveMonitoredItem("s1", node, nil), ErrNilCallback)
}

func TestSyncWriteThenRead(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "Setpoint")
	ctx := context.Background()

	require.NoError(t, conn.Write(ctx, node, NewVariant(21.5)))
	dv, err := conn.Read(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, 21.5, dv.Value.Value)
	assert.Equal(t, StatusGood, dv.StatusCode)
}

func TestSyncReadPerOperationErrorDoesNotReconnect(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewNumericNodeID(2, 7)

	mock.mu.Lock()
	mock.readErrs = []error{StatusBadNodeIdUnknown}
	mock.mu.Unlock()

	_, err := conn.Read(context.Background(), node)
	require.Error(t, err)
	assert.Equal(t, StatusBadNodeIdUnknown, StatusFromError(err))

	mock.mu.Lock()
	builds := mock.builds
	mock.mu.Unlock()
	assert.Equal(t, 1, builds, "per-operation error must not rebuild the session")
	assert.Equal(t, int64(0), conn.Metrics().Reconnections.Value())
}

// Scenario: a synchronous write hits a connection-fatal error, the
// session is rebuilt, and the write retried exactly once.
func TestSyncWriteRetriesOnceAfterReconnect(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewNumericNodeID(0, 42)

	eventually(t, func() bool {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		return mock.connected
	}, "initial connect")

	mock.mu.Lock()
	mock.writeErrs = []error{StatusBadConnectionClosed}
	mock.mu.Unlock()

	err := conn.Write(context.Background(), node, NewVariant(int32(7)))
	require.NoError(t, err, "write must succeed via retry after reconnect")

	mock.mu.Lock()
	builds := mock.builds
	value := mock.values[node.Key()]
	mock.mu.Unlock()
	assert.Equal(t, 2, builds, "exactly one rebuild cycle")
	assert.Equal(t, int32(7), value.Value)
	assert.Equal(t, int64(1), conn.Metrics().Reconnections.Value())
	assert.Equal(t, 2, mock.opCount("write "+node.Key()))
}

func TestSyncWriteFailsWhenRetryAlsoFatal(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewNumericNodeID(0, 42)

	mock.mu.Lock()
	mock.writeErrs = []error{StatusBadConnectionClosed, StatusBadConnectionClosed}
	mock.mu.Unlock()

	err := conn.Write(context.Background(), node, NewVariant(int32(7)))
	require.Error(t, err)
	assert.True(t, StatusFromError(err).IsConnectionFatal())
}

// Async requests are dispatched to the driver in enqueue order.
func TestAsyncRequestsAreFIFO(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)

	const n = 25
	cb := &recordReadCB{}
	var want []string
	for i := 0; i < n; i++ {
		node := NewNumericNodeID(2, uint32(i))
		want = append(want, "read "+node.Key())
		require.NoError(t, conn.ReadAsync(node, cb))
	}

	eventually(t, func() bool {
		s, f := cb.counts()
		return s+f == n
	}, "all callbacks invoked")

	var reads []string
	for _, op := range mock.opsSnapshot() {
		if len(op) > 5 && op[:5] == "read " {
			reads = append(reads, op)
		}
	}
	assert.Equal(t, want, reads)
}

// No two driver calls ever execute concurrently, no matter how many
// goroutines hammer the connection.
func TestSessionCallsNeverConcurrent(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)

	var wg sync.WaitGroup
	cb := &recordReadCB{}
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			node := NewNumericNodeID(1, uint32(g))
			for i := 0; i < 20; i++ {
				if g%2 == 0 {
					conn.Read(context.Background(), node)
				} else {
					conn.ReadAsync(node, cb)
				}
			}
		}(g)
	}
	wg.Wait()

	eventually(t, func() bool { return conn.QueueDepth() == 0 }, "queue drained")
	assert.LessOrEqual(t, atomic.LoadInt32(&mock.maxInflight), int32(1),
		"driver calls must be serialized")
}

// The subscription is activated before its first item.
func TestSubscriptionActivatedBeforeItem(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "Temperature")
	cb := &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) == 1 }, "item activated")

	var subIdx, itemIdx int
	for i, op := range mock.opsSnapshot() {
		switch op {
		case "create-sub":
			subIdx = i
		case "create-item " + node.Key():
			itemIdx = i
		}
	}
	assert.Less(t, subIdx, itemIdx, "subscription must be created before its item")
	assert.Equal(t, int64(1), conn.Metrics().ActiveSubscriptions.Value())
	assert.Equal(t, int64(1), conn.Metrics().MonitoredItems.Value())
}

// A duplicate (subscription, node, callback) registration is silently
// ignored.
func TestMonitoredItemRegistrationIdempotent(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "Temperature")
	cb := &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return conn.QueueDepth() == 0 }, "queue drained")
	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) >= 1 }, "item activated")

	// Let the worker settle, then check only one activation happened.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, mock.opCount("create-item "+node.Key()))
	assert.Equal(t, int64(1), conn.Metrics().MonitoredItems.Value())

	// A different callback on the same node is a distinct registration.
	cb2 := &recordItemCB{}
	require.NoError(t, conn.AddMonitoredItem("s1", node, cb2))
	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) == 2 }, "second registration activated")
	assert.Equal(t, int64(2), conn.Metrics().MonitoredItems.Value())
}

// Removing an unknown registration is a no-op.
func TestRemoveUnknownMonitoredItemIsNoop(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "Nope")
	cb := &recordItemCB{}

	require.NoError(t, conn.RemoveMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return conn.QueueDepth() == 0 }, "queue drained")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, mock.opCount("delete-item "+node.Key()))
	_, failures := cb.counts()
	assert.Equal(t, 0, failures)
}

func TestRemoveLastItemDeactivatesSubscription(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "Temperature")
	cb := &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return conn.Metrics().ActiveSubscriptions.Value() == 1 }, "subscription active")

	require.NoError(t, conn.RemoveMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return conn.Metrics().ActiveSubscriptions.Value() == 0 }, "subscription deactivated")
	assert.Equal(t, 1, mock.opCount("delete-item "+node.Key()))
	assert.Equal(t, 1, mock.opCount("delete-sub"))
	assert.Equal(t, int64(0), conn.Metrics().MonitoredItems.Value())
}

// Notifications flow from the driver's background iteration to the
// registered callback.
func TestNotificationDelivery(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "Temperature")
	cb := &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) == 1 }, "item activated")

	mock.pushNotification(node, DataValue{Value: NewVariant(20.5), StatusCode: StatusGood})
	eventually(t, func() bool {
		notifies, _ := cb.counts()
		return notifies == 1
	}, "notification delivered")

	cb.mu.Lock()
	got := cb.notifies[0].Value.Value
	cb.mu.Unlock()
	assert.Equal(t, 20.5, got)
	assert.Equal(t, int64(1), conn.Metrics().NotificationsReceived.Value())
}

// Scenario: a fatal error in the background pump loses an active item;
// its callback gets one failure, and after reconnect a fresh
// activation with a new monitor ID.
func TestBackgroundPumpErrorTriggersResubscribe(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "A")
	cb := &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) == 1 }, "item activated")

	mock.mu.Lock()
	mock.iterErrs = []error{StatusBadCommunicationError}
	mock.mu.Unlock()

	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) == 2 }, "item re-activated")
	_, failures := cb.counts()
	assert.Equal(t, 1, failures, "one failure for the lost item")
	cb.mu.Lock()
	assert.Equal(t, StatusBadCommunicationError, cb.failures[0])
	cb.mu.Unlock()

	mock.mu.Lock()
	builds := mock.builds
	mock.mu.Unlock()
	assert.Equal(t, 2, builds)

	// The re-activated item is live: notifications flow again.
	mock.pushNotification(node, DataValue{Value: NewVariant(int32(1)), StatusCode: StatusGood})
	eventually(t, func() bool {
		notifies, _ := cb.counts()
		return notifies == 1
	}, "notification after reconnect")
}

// A recovery whose own connect attempt fails must not strand
// registered items: when a later connect succeeds, the items are
// restored with it.
func TestItemsRestoredWhenReconnectSucceedsLater(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "A")
	cb := &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) == 1 }, "item activated")

	// The session dies, and the server stays down for one connect
	// attempt during recovery.
	mock.mu.Lock()
	mock.iterErrs = []error{StatusBadCommunicationError}
	mock.connectErrs = []error{StatusBadConnectionRejected}
	mock.mu.Unlock()

	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) == 2 }, "item restored on the later reconnect")
	eventually(t, func() bool { return conn.State() == StateConnected }, "session back up")

	_, failures := cb.counts()
	assert.Equal(t, 1, failures, "one loss notification, nothing extra from the failed attempt")

	mock.pushNotification(node, DataValue{Value: NewVariant(int32(3)), StatusCode: StatusGood})
	eventually(t, func() bool {
		notifies, _ := cb.counts()
		return notifies == 1
	}, "restored item is live")
}

// An item whose activation kills the session gets exactly one Failure
// from the recovery that re-attempts it, not a second one from the
// registration path.
func TestActivationFatalErrorNotifiesOnce(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	nodeA := NewStringNodeID(2, "A")
	nodeB := NewStringNodeID(2, "B")
	cbA, cbB := &recordItemCB{}, &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", nodeA, cbA))
	eventually(t, func() bool { return mock.opCount("create-item "+nodeA.Key()) == 1 }, "A active")

	// B's first activation is fatal; the re-attempt during recovery
	// fails per-operation.
	mock.mu.Lock()
	mock.itemFatalFailures[nodeB.Key()] = 1
	mock.itemFailures[nodeB.Key()] = 1
	mock.mu.Unlock()

	require.NoError(t, conn.AddMonitoredItem("s1", nodeB, cbB))
	eventually(t, func() bool {
		_, f := cbB.counts()
		return f >= 1
	}, "B notified")
	time.Sleep(20 * time.Millisecond)

	_, fB := cbB.counts()
	assert.Equal(t, 1, fB, "exactly one failure per activation event")
	cbB.mu.Lock()
	assert.Equal(t, StatusBadMonitoredItemIdInvalid, cbB.failures[0])
	cbB.mu.Unlock()

	// A was active when the session died: one loss notification, then
	// restored alongside the recovery.
	eventually(t, func() bool { return mock.opCount("create-item "+nodeA.Key()) == 2 }, "A restored")
	_, fA := cbA.counts()
	assert.Equal(t, 1, fA)
}

// One item failing to re-activate during reconnect does not block
// the other items, and only the failed one gets an extra failure.
func TestReconnectFaultIsolation(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)

	nodeA := NewStringNodeID(2, "A")
	nodeB := NewStringNodeID(2, "B")
	nodeC := NewStringNodeID(2, "C")
	cbA, cbB, cbC := &recordItemCB{}, &recordItemCB{}, &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", nodeA, cbA))
	require.NoError(t, conn.AddMonitoredItem("s1", nodeB, cbB))
	require.NoError(t, conn.AddMonitoredItem("s2", nodeC, cbC))
	eventually(t, func() bool {
		return mock.opCount("create-item "+nodeA.Key()) == 1 &&
			mock.opCount("create-item "+nodeB.Key()) == 1 &&
			mock.opCount("create-item "+nodeC.Key()) == 1
	}, "all items activated")

	mock.mu.Lock()
	mock.itemFailures[nodeB.Key()] = 1
	mock.iterErrs = []error{StatusBadConnectionClosed}
	mock.mu.Unlock()

	eventually(t, func() bool {
		return mock.opCount("create-item "+nodeA.Key()) == 2 &&
			mock.opCount("create-item "+nodeB.Key()) == 2 &&
			mock.opCount("create-item "+nodeC.Key()) == 2
	}, "re-activation attempted for every item")

	// Each active item got one loss notification; B got a second
	// failure when its re-activation was rejected.
	_, fA := cbA.counts()
	_, fB := cbB.counts()
	_, fC := cbC.counts()
	assert.Equal(t, 1, fA)
	assert.Equal(t, 2, fB)
	assert.Equal(t, 1, fC)

	// A and C survived: notifications still arrive.
	mock.pushNotification(nodeA, DataValue{Value: NewVariant(int32(1))})
	mock.pushNotification(nodeC, DataValue{Value: NewVariant(int32(2))})
	eventually(t, func() bool {
		nA, _ := cbA.counts()
		nC, _ := cbC.counts()
		return nA == 1 && nC == 1
	}, "surviving items still live")
	nB, _ := cbB.counts()
	assert.Equal(t, 0, nB)
}

func TestMonitoredItemActivationFailureKeepsSiblings(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	nodeA := NewStringNodeID(2, "A")
	nodeB := NewStringNodeID(2, "B")
	cbA, cbB := &recordItemCB{}, &recordItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", nodeA, cbA))
	eventually(t, func() bool { return mock.opCount("create-item "+nodeA.Key()) == 1 }, "A active")

	mock.mu.Lock()
	mock.itemFailures[nodeB.Key()] = 1
	mock.mu.Unlock()

	require.NoError(t, conn.AddMonitoredItem("s1", nodeB, cbB))
	eventually(t, func() bool {
		_, f := cbB.counts()
		return f == 1
	}, "B got a failure")

	cbB.mu.Lock()
	assert.Equal(t, StatusBadMonitoredItemIdInvalid, cbB.failures[0])
	cbB.mu.Unlock()
	_, fA := cbA.counts()
	assert.Equal(t, 0, fA, "sibling item untouched")
	assert.Equal(t, int64(0), conn.Metrics().Reconnections.Value(), "non-fatal activation error must not reconnect")
}

// A panicking callback must not take the worker down.
type panickyItemCB struct {
	recordItemCB
}

func (c *panickyItemCB) Notify(node NodeID, v DataValue) {
	c.recordItemCB.Notify(node, v)
	panic("callback bug")
}

func TestCallbackPanicDoesNotStopWorker(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewStringNodeID(2, "Temperature")
	cb := &panickyItemCB{}

	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return mock.opCount("create-item "+node.Key()) == 1 }, "item activated")

	mock.pushNotification(node, DataValue{Value: NewVariant(int32(1))})
	eventually(t, func() bool {
		n, _ := cb.counts()
		return n == 1
	}, "panicking notification delivered")

	// The worker survived: synchronous operations still work.
	_, err := conn.Read(context.Background(), node)
	assert.NoError(t, err)
}

func TestSubscriptionParameterDefaultsAndSetters(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)

	assert.Equal(t, DefaultPublishingInterval, conn.PublishingInterval("s1"))
	assert.Equal(t, DefaultLifetimeCount, conn.LifetimeCount("s1"))
	assert.Equal(t, DefaultMaxKeepAliveCount, conn.MaxKeepAliveCount("s1"))

	conn.SetPublishingInterval("s1", 250*time.Millisecond)
	conn.SetLifetimeCount("s1", 600)
	conn.SetMaxKeepAliveCount("s1", 5)

	assert.Equal(t, 250*time.Millisecond, conn.PublishingInterval("s1"))
	assert.Equal(t, uint32(600), conn.LifetimeCount("s1"))
	assert.Equal(t, uint32(5), conn.MaxKeepAliveCount("s1"))

	// The configured parameters are what the driver receives.
	cb := &recordItemCB{}
	node := NewNumericNodeID(2, 1)
	require.NoError(t, conn.AddMonitoredItem("s1", node, cb))
	eventually(t, func() bool { return mock.opCount("create-sub") == 1 }, "subscription created")

	mock.mu.Lock()
	params := mock.subParams[1]
	mock.mu.Unlock()
	assert.Equal(t, 250*time.Millisecond, params.PublishingInterval)
	assert.Equal(t, uint32(600), params.LifetimeCount)
	assert.Equal(t, uint32(5), params.MaxKeepAliveCount)
}

func TestCloseAbandonsQueuedRequests(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewNumericNodeID(2, 1)

	cb := &recordReadCB{}
	for i := 0; i < 50; i++ {
		conn.ReadAsync(node, cb)
	}
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")

	assert.Equal(t, StateClosed, conn.State())
	assert.ErrorIs(t, conn.ReadAsync(node, cb), ErrClosed)
	assert.ErrorIs(t, conn.WriteAsync(node, NewVariant(int32(1)), &recordWriteCB{}), ErrClosed)
	_, err := conn.Read(context.Background(), node)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, conn.Write(context.Background(), node, NewVariant(int32(1))), ErrClosed)

	// Whatever was not processed before shutdown stays silent forever.
	s, f := cb.counts()
	assert.LessOrEqual(t, s+f, 50)
	settled := s + f
	time.Sleep(20 * time.Millisecond)
	s, f = cb.counts()
	assert.Equal(t, settled, s+f, "no callbacks after close")
}

func TestAsyncReadReportsFailureStatus(t *testing.T) {
	mock := newMockDriver()
	conn := newTestConnection(t, mock)
	node := NewNumericNodeID(2, 9)

	// Wait for the worker's background connect so the scripted error
	// hits the read, not the connect.
	eventually(t, func() bool {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		return mock.connected
	}, "initial connect")

	mock.mu.Lock()
	mock.readErrs = []error{StatusBadUserAccessDenied}
	mock.mu.Unlock()

	cb := &recordReadCB{}
	require.NoError(t, conn.ReadAsync(node, cb))
	eventually(t, func() bool {
		_, f := cb.counts()
		return f == 1
	}, "failure reported")
	cb.mu.Lock()
	assert.Equal(t, StatusBadUserAccessDenied, cb.failures[0])
	cb.mu.Unlock()
}

func TestConnectFailureSurfacesOnSyncRead(t *testing.T) {
	mock := newMockDriver()
	// Enough scripted failures to cover background attempts plus the
	// synchronous one.
	mock.connectErrs = make([]error, 0, 1000)
	for i := 0; i < 1000; i++ {
		mock.connectErrs = append(mock.connectErrs, fmt.Errorf("dial: %w", StatusBadConnectionRejected))
	}
	conn := newTestConnection(t, mock)

	_, err := conn.Read(context.Background(), NewNumericNodeID(2, 1))
	require.Error(t, err)
	assert.Equal(t, StatusBadConnectionRejected, StatusFromError(err))
}
