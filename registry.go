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
	"sort"
	"sync"
)

// Registry holds named server connections. It is constructed once at
// process start and passed to the components that need connections;
// there is no package-level instance.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]*ServerConnection
	logger *slog.Logger
	closed bool
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*ServerConnection),
		logger: logger,
	}
}

// Register adds a connection under the given name. Registering a name
// twice returns ErrConnectionExists.
func (r *Registry) Register(name string, conn *ServerConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.conns[name]; ok {
		return ErrConnectionExists
	}
	r.conns[name] = conn
	r.logger.Debug("connection registered",
		slog.String("name", name),
		slog.String("endpoint", conn.Endpoint()))
	return nil
}

// Lookup returns the connection registered under the given name.
func (r *Registry) Lookup(name string) (*ServerConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[name]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// Names returns the registered connection names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll closes every registered connection and marks the registry
// closed. The first close error is returned; all connections are
// closed regardless.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conns := make(map[string]*ServerConnection, len(r.conns))
	for name, conn := range r.conns {
		conns[name] = conn
	}
	r.conns = make(map[string]*ServerConnection)
	r.mu.Unlock()

	var firstErr error
	for name, conn := range conns {
		if err := conn.Close(); err != nil {
			r.logger.Error("closing connection failed",
				slog.String("name", name),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
