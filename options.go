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
	"log/slog"
	"time"
)

// connectionOptions holds configuration for a ServerConnection.
type connectionOptions struct {
	logger         *slog.Logger
	username       string
	password       string
	securityPolicy SecurityPolicy
	securityMode   MessageSecurityMode
	certFile       string
	keyFile        string
	applicationURI string
	connectTimeout time.Duration
	idleWait       time.Duration
	driverFactory  DriverFactory

	subscriptionDefaults SubscriptionParams
}

// defaultConnectionOptions returns the default connection options.
func defaultConnectionOptions() *connectionOptions {
	return &connectionOptions{
		logger:         slog.Default(),
		securityPolicy: SecurityPolicyNone,
		securityMode:   MessageSecurityModeNone,
		connectTimeout: DefaultTimeout,
		idleWait:       50 * time.Millisecond,
		subscriptionDefaults: SubscriptionParams{
			PublishingInterval: DefaultPublishingInterval,
			LifetimeCount:      DefaultLifetimeCount,
			MaxKeepAliveCount:  DefaultMaxKeepAliveCount,
		},
	}
}

// Option configures a ServerConnection.
type Option func(*connectionOptions)

// WithLogger sets the logger for the connection.
func WithLogger(logger *slog.Logger) Option {
	return func(o *connectionOptions) {
		o.logger = logger
	}
}

// WithAuth sets username/password authentication.
func WithAuth(username, password string) Option {
	return func(o *connectionOptions) {
		o.username = username
		o.password = password
	}
}

// WithSecurity sets the security policy and message security mode.
func WithSecurity(policy SecurityPolicy, mode MessageSecurityMode) Option {
	return func(o *connectionOptions) {
		o.securityPolicy = policy
		o.securityMode = mode
	}
}

// WithCertificate sets the client certificate and private key files
// used for secured endpoints.
func WithCertificate(certFile, keyFile string) Option {
	return func(o *connectionOptions) {
		o.certFile = certFile
		o.keyFile = keyFile
	}
}

// WithApplicationURI sets the application URI presented to the server.
func WithApplicationURI(uri string) Option {
	return func(o *connectionOptions) {
		o.applicationURI = uri
	}
}

// WithConnectTimeout sets the timeout for connect attempts.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *connectionOptions) {
		o.connectTimeout = d
	}
}

// WithIdleWait sets how long the worker waits for new requests between
// background iterations. Shorter values lower notification latency at
// the cost of more idle wakeups.
func WithIdleWait(d time.Duration) Option {
	return func(o *connectionOptions) {
		if d > 0 {
			o.idleWait = d
		}
	}
}

// WithSubscriptionDefaults sets the default parameters applied to
// subscriptions that have not been configured individually.
func WithSubscriptionDefaults(params SubscriptionParams) Option {
	return func(o *connectionOptions) {
		o.subscriptionDefaults = params
	}
}

// WithDriverFactory replaces the session driver factory. The default
// factory builds a gopcua-backed driver for the connection's endpoint.
func WithDriverFactory(factory DriverFactory) Option {
	return func(o *connectionOptions) {
		o.driverFactory = factory
	}
}
