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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// gopcuaDriver implements SessionDriver on top of a gopcua client. It
// is not safe for concurrent use; the connection serializes all calls
// through the session lock.
type gopcuaDriver struct {
	endpoint string
	opts     *connectionOptions
	logger   *slog.Logger

	client   *opcua.Client
	notifyCh chan *opcua.PublishNotificationData

	subs       map[uint32]*opcua.Subscription // server subscription ID -> handle
	handles    map[uint32]handleEntry         // client handle -> dispatch target
	itemHandle map[uint32]uint32              // monitored item ID -> client handle
	nextHandle uint32
}

type handleEntry struct {
	subscriptionID uint32
	node           NodeID
	notify         NotifyFunc
}

// newGopcuaDriver creates an unconnected driver for the endpoint.
func newGopcuaDriver(endpoint string, opts *connectionOptions) (SessionDriver, error) {
	return &gopcuaDriver{
		endpoint:   endpoint,
		opts:       opts,
		logger:     opts.logger.With(slog.String("endpoint", endpoint)),
		notifyCh:   make(chan *opcua.PublishNotificationData, 128),
		subs:       make(map[uint32]*opcua.Subscription),
		handles:    make(map[uint32]handleEntry),
		itemHandle: make(map[uint32]uint32),
	}, nil
}

// Connect discovers the server's endpoints, selects one matching the
// configured security policy and mode, and establishes the session.
func (d *gopcuaDriver) Connect(ctx context.Context) error {
	endpoints, err := opcua.GetEndpoints(ctx, d.endpoint)
	if err != nil {
		return d.mapError("discover", err)
	}

	policy := shortPolicyName(d.opts.securityPolicy)
	mode := ua.MessageSecurityMode(d.opts.securityMode)
	ep := opcua.SelectEndpoint(endpoints, policy, mode)
	if ep == nil {
		return NewUAError("connect", StatusBadSecurityPolicyRejected,
			fmt.Sprintf("no endpoint with policy %s mode %s", policy, d.opts.securityMode))
	}

	tokenType := ua.UserTokenTypeAnonymous
	clientOpts := []opcua.Option{}
	if d.opts.username != "" {
		tokenType = ua.UserTokenTypeUserName
		clientOpts = append(clientOpts, opcua.AuthUsername(d.opts.username, d.opts.password))
	} else {
		clientOpts = append(clientOpts, opcua.AuthAnonymous())
	}
	clientOpts = append(clientOpts, opcua.SecurityFromEndpoint(ep, tokenType))
	if d.opts.certFile != "" {
		clientOpts = append(clientOpts, opcua.CertificateFile(d.opts.certFile))
	}
	if d.opts.keyFile != "" {
		clientOpts = append(clientOpts, opcua.PrivateKeyFile(d.opts.keyFile))
	}
	if d.opts.applicationURI != "" {
		clientOpts = append(clientOpts, opcua.ApplicationURI(d.opts.applicationURI))
	}
	clientOpts = append(clientOpts, opcua.RequestTimeout(d.opts.connectTimeout))

	client, err := opcua.NewClient(ep.EndpointURL, clientOpts...)
	if err != nil {
		return d.mapError("connect", err)
	}
	if err := client.Connect(ctx); err != nil {
		return d.mapError("connect", err)
	}
	d.client = client
	return nil
}

// Close tears down the session. Safe on a driver whose transport is
// already dead.
func (d *gopcuaDriver) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close(ctx)
	d.client = nil
	return err
}

// Read reads the value attribute of one node.
func (d *gopcuaDriver) Read(ctx context.Context, node NodeID) (DataValue, error) {
	if d.client == nil {
		return DataValue{}, NewUAError("read", StatusBadServerNotConnected, "")
	}
	req := &ua.ReadRequest{
		MaxAge: 0,
		NodesToRead: []*ua.ReadValueID{{
			NodeID:      toUANodeID(node),
			AttributeID: ua.AttributeIDValue,
		}},
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	}
	resp, err := d.client.Read(ctx, req)
	if err != nil {
		return DataValue{}, d.mapError("read", err)
	}
	if len(resp.Results) == 0 {
		return DataValue{}, NewUAError("read", StatusBadUnknownResponse, "empty read response")
	}
	result := resp.Results[0]
	if result.Status != ua.StatusOK {
		return DataValue{}, StatusCode(uint32(result.Status))
	}
	return fromUADataValue(result), nil
}

// Write writes the value attribute of one node.
func (d *gopcuaDriver) Write(ctx context.Context, node NodeID, value Variant) error {
	if d.client == nil {
		return NewUAError("write", StatusBadServerNotConnected, "")
	}
	v, err := ua.NewVariant(value.Value)
	if err != nil {
		return NewUAError("write", StatusBadTypeMismatch, err.Error())
	}
	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      toUANodeID(node),
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        v,
			},
		}},
	}
	resp, err := d.client.Write(ctx, req)
	if err != nil {
		return d.mapError("write", err)
	}
	if len(resp.Results) == 0 {
		return NewUAError("write", StatusBadUnknownResponse, "empty write response")
	}
	if resp.Results[0] != ua.StatusOK {
		return StatusCode(uint32(resp.Results[0]))
	}
	return nil
}

// CreateSubscription creates a subscription publishing into the
// driver's notification channel.
func (d *gopcuaDriver) CreateSubscription(ctx context.Context, params SubscriptionParams) (uint32, error) {
	if d.client == nil {
		return 0, NewUAError("create subscription", StatusBadServerNotConnected, "")
	}
	sub, err := d.client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval:          params.PublishingInterval,
		LifetimeCount:     params.LifetimeCount,
		MaxKeepAliveCount: params.MaxKeepAliveCount,
	}, d.notifyCh)
	if err != nil {
		return 0, d.mapError("create subscription", err)
	}
	d.subs[sub.SubscriptionID] = sub
	return sub.SubscriptionID, nil
}

// DeleteSubscription deletes a subscription and forgets its items.
func (d *gopcuaDriver) DeleteSubscription(ctx context.Context, subscriptionID uint32) error {
	sub, ok := d.subs[subscriptionID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	delete(d.subs, subscriptionID)
	for handle, entry := range d.handles {
		if entry.subscriptionID == subscriptionID {
			delete(d.handles, handle)
		}
	}
	for itemID, handle := range d.itemHandle {
		if entry, ok := d.handles[handle]; !ok || entry.subscriptionID == subscriptionID {
			delete(d.itemHandle, itemID)
		}
	}
	if err := sub.Cancel(ctx); err != nil {
		return d.mapError("delete subscription", err)
	}
	return nil
}

// CreateMonitoredItem creates one reporting monitored item for the
// node's value attribute.
func (d *gopcuaDriver) CreateMonitoredItem(ctx context.Context, subscriptionID uint32, node NodeID, params MonitoredItemParams, notify NotifyFunc) (uint32, error) {
	sub, ok := d.subs[subscriptionID]
	if !ok {
		return 0, ErrSubscriptionNotFound
	}

	d.nextHandle++
	handle := d.nextHandle
	req := &ua.MonitoredItemCreateRequest{
		ItemToMonitor: &ua.ReadValueID{
			NodeID:      toUANodeID(node),
			AttributeID: ua.AttributeIDValue,
		},
		MonitoringMode: ua.MonitoringModeReporting,
		RequestedParameters: &ua.MonitoringParameters{
			ClientHandle:     handle,
			SamplingInterval: float64(params.SamplingInterval) / float64(time.Millisecond),
			QueueSize:        params.QueueSize,
			DiscardOldest:    params.DiscardOldest,
		},
	}

	resp, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		return 0, d.mapError("create monitored item", err)
	}
	if len(resp.Results) == 0 {
		return 0, NewUAError("create monitored item", StatusBadUnknownResponse, "empty create response")
	}
	result := resp.Results[0]
	if result.StatusCode != ua.StatusOK {
		return 0, StatusCode(uint32(result.StatusCode))
	}

	d.handles[handle] = handleEntry{
		subscriptionID: subscriptionID,
		node:           node,
		notify:         notify,
	}
	d.itemHandle[result.MonitoredItemID] = handle
	return result.MonitoredItemID, nil
}

// DeleteMonitoredItem deletes one monitored item.
func (d *gopcuaDriver) DeleteMonitoredItem(ctx context.Context, subscriptionID, monitoredItemID uint32) error {
	sub, ok := d.subs[subscriptionID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if handle, ok := d.itemHandle[monitoredItemID]; ok {
		delete(d.handles, handle)
		delete(d.itemHandle, monitoredItemID)
	}
	resp, err := sub.Unmonitor(ctx, monitoredItemID)
	if err != nil {
		return d.mapError("delete monitored item", err)
	}
	if len(resp.Results) > 0 && resp.Results[0] != ua.StatusOK {
		return StatusCode(uint32(resp.Results[0]))
	}
	return nil
}

// Iterate drains pending publish notifications and dispatches data
// changes by client handle. It returns quickly when nothing is
// pending; timeout only bounds a drain of a busy channel.
func (d *gopcuaDriver) Iterate(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-d.notifyCh:
			if err := d.handleNotification(msg); err != nil {
				return err
			}
			if time.Now().After(deadline) {
				return nil
			}
		default:
			return nil
		}
	}
}

func (d *gopcuaDriver) handleNotification(msg *opcua.PublishNotificationData) error {
	if msg.Error != nil {
		return d.mapError("publish", msg.Error)
	}
	switch v := msg.Value.(type) {
	case *ua.DataChangeNotification:
		for _, item := range v.MonitoredItems {
			entry, ok := d.handles[item.ClientHandle]
			if !ok {
				d.logger.Debug("notification for unknown client handle",
					slog.Uint64("handle", uint64(item.ClientHandle)))
				continue
			}
			entry.notify(entry.node, fromUADataValue(item.Value))
		}
	case *ua.StatusChangeNotification:
		status := StatusCode(uint32(v.Status))
		d.logger.Warn("subscription status change",
			slog.Uint64("subscription", uint64(msg.SubscriptionID)),
			slog.String("status", status.String()))
		if status.IsConnectionFatal() {
			return status
		}
	case *ua.EventNotificationList:
		// Event subscriptions are not created by this driver.
	}
	return nil
}

// mapError translates a gopcua error into a status-carrying error.
// Errors without a status code come from the transport and are treated
// as connection-fatal.
func (d *gopcuaDriver) mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var code ua.StatusCode
	if errors.As(err, &code) {
		return NewUAError(op, StatusCode(uint32(code)), "")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewUAError(op, StatusBadTimeout, err.Error())
	}
	return NewUAError(op, StatusBadCommunicationError, err.Error())
}

// toUANodeID converts a NodeID to its gopcua representation.
func toUANodeID(n NodeID) *ua.NodeID {
	switch n.Type {
	case NodeIDTypeString:
		return ua.NewStringNodeID(n.Namespace, n.StringID)
	case NodeIDTypeGUID:
		return ua.NewGUIDNodeID(n.Namespace, formatGUID(n.GUID))
	case NodeIDTypeOpaque:
		return ua.NewByteStringNodeID(n.Namespace, n.Opaque)
	default:
		return ua.NewNumericNodeID(n.Namespace, n.Numeric)
	}
}

// fromUAVariant converts a gopcua variant. Built-in type identifiers
// are numerically identical on both sides.
func fromUAVariant(v *ua.Variant) Variant {
	if v == nil {
		return Variant{}
	}
	return Variant{Type: TypeID(v.Type()), Value: v.Value()}
}

// fromUADataValue converts a gopcua data value.
func fromUADataValue(dv *ua.DataValue) DataValue {
	if dv == nil {
		return DataValue{}
	}
	return DataValue{
		Value:           fromUAVariant(dv.Value),
		StatusCode:      StatusCode(uint32(dv.Status)),
		SourceTimestamp: dv.SourceTimestamp,
		ServerTimestamp: dv.ServerTimestamp,
	}
}

func formatGUID(g [16]byte) string {
	return fmt.Sprintf("%X-%X-%X-%X-%X", g[0:4], g[4:6], g[6:8], g[8:10], g[10:16])
}

func shortPolicyName(p SecurityPolicy) string {
	s := string(p)
	if idx := strings.LastIndex(s, "#"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
