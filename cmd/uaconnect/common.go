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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/edgeo-scada/uaconnect"
)

// newLogger creates the CLI logger, at debug level when --verbose is set.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildOptions creates connection options from CLI flags.
func buildOptions() ([]uaconnect.Option, error) {
	policy, err := uaconnect.ParseSecurityPolicy(securityPolicy)
	if err != nil {
		return nil, err
	}
	mode, err := uaconnect.ParseSecurityMode(securityMode)
	if err != nil {
		return nil, err
	}

	if mode != uaconnect.MessageSecurityModeNone && policy == uaconnect.SecurityPolicyNone {
		return nil, fmt.Errorf("security mode %s requires a security policy other than None", securityMode)
	}
	if (certFile != "") != (keyFile != "") {
		return nil, fmt.Errorf("both --cert and --key must be specified together")
	}
	if mode != uaconnect.MessageSecurityModeNone && certFile == "" {
		return nil, fmt.Errorf("security mode %s requires a client certificate (use --cert and --key)", securityMode)
	}

	opts := []uaconnect.Option{
		uaconnect.WithSecurity(policy, mode),
		uaconnect.WithConnectTimeout(time.Duration(timeout) * time.Millisecond),
		uaconnect.WithLogger(newLogger()),
	}
	if username != "" {
		opts = append(opts, uaconnect.WithAuth(username, password))
	}
	if certFile != "" {
		opts = append(opts, uaconnect.WithCertificate(certFile, keyFile))
	}
	return opts, nil
}

// connect builds a ServerConnection from the CLI flags.
func connect() (*uaconnect.ServerConnection, error) {
	opts, err := buildOptions()
	if err != nil {
		return nil, err
	}
	conn, err := uaconnect.NewServerConnection(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return conn, nil
}
