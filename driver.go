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
	"time"
)

// SubscriptionParams are the parameters requested when a subscription
// is created on the server.
type SubscriptionParams struct {
	PublishingInterval time.Duration
	LifetimeCount      uint32
	MaxKeepAliveCount  uint32
}

// MonitoredItemParams are the parameters requested when a monitored
// item is created on the server.
type MonitoredItemParams struct {
	SamplingInterval time.Duration
	QueueSize        uint32
	DiscardOldest    bool
}

// NotifyFunc receives a data change for one monitored item. It is
// called from the driver's Iterate step.
type NotifyFunc func(node NodeID, value DataValue)

// SessionDriver owns one underlying client/session handle. All calls
// are made with the connection's session lock held, so implementations
// do not need to be safe for concurrent use. A driver that has
// returned a connection-fatal error is discarded as a whole and
// replaced through the DriverFactory; it only needs to survive a final
// Close.
type SessionDriver interface {
	// Connect establishes the session.
	Connect(ctx context.Context) error

	// Close tears the session down. Close is best-effort; it is also
	// called on drivers whose transport is already dead.
	Close(ctx context.Context) error

	// Read reads the value attribute of one node.
	Read(ctx context.Context, node NodeID) (DataValue, error)

	// Write writes the value attribute of one node.
	Write(ctx context.Context, node NodeID, value Variant) error

	// CreateSubscription creates a subscription on the server and
	// returns its server-assigned ID.
	CreateSubscription(ctx context.Context, params SubscriptionParams) (uint32, error)

	// DeleteSubscription deletes a subscription on the server.
	DeleteSubscription(ctx context.Context, subscriptionID uint32) error

	// CreateMonitoredItem creates a monitored item inside the given
	// subscription and returns its server-assigned ID. Data changes
	// for the item are delivered through notify during Iterate.
	CreateMonitoredItem(ctx context.Context, subscriptionID uint32, node NodeID, params MonitoredItemParams, notify NotifyFunc) (uint32, error)

	// DeleteMonitoredItem deletes a monitored item from the given
	// subscription.
	DeleteMonitoredItem(ctx context.Context, subscriptionID, monitoredItemID uint32) error

	// Iterate runs protocol background work for at most the given
	// duration: it delivers pending server notifications to the notify
	// functions registered via CreateMonitoredItem and reports the
	// health of the transport. A connection-fatal error triggers the
	// reconnect path.
	Iterate(ctx context.Context, timeout time.Duration) error
}

// DriverFactory produces a fresh SessionDriver. The connection calls
// it once at startup and once per reconnect cycle: after a fatal
// error the old driver is closed and discarded rather than reused,
// since the underlying client may be unable to resume.
type DriverFactory func() (SessionDriver, error)
