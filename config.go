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
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config describes a set of named server connections, typically loaded
// from a YAML file at process start.
type Config struct {
	Connections map[string]ConnectionConfig `yaml:"connections"`
}

// ConnectionConfig describes one server connection.
type ConnectionConfig struct {
	Endpoint                 string `yaml:"endpoint"`
	Username                 string `yaml:"username"`
	Password                 string `yaml:"password"`
	SecurityPolicy           string `yaml:"securityPolicy"`
	SecurityMode             string `yaml:"securityMode"`
	CertificateFile          string `yaml:"certificateFile"`
	PrivateKeyFile           string `yaml:"privateKeyFile"`
	ApplicationURI           string `yaml:"applicationURI"`
	ConnectTimeoutMillis     uint32 `yaml:"connectTimeoutMillis"`
	PublishingIntervalMillis uint32 `yaml:"publishingIntervalMillis"`
	LifetimeCount            uint32 `yaml:"lifetimeCount"`
	MaxKeepAliveCount        uint32 `yaml:"maxKeepAliveCount"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("uaconnect: reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("uaconnect: parsing config: %w", err)
	}
	for name, cc := range cfg.Connections {
		if cc.Endpoint == "" {
			return nil, fmt.Errorf("uaconnect: connection %q: %w", name, ErrInvalidEndpoint)
		}
		if _, err := ParseSecurityPolicy(cc.SecurityPolicy); err != nil {
			return nil, fmt.Errorf("uaconnect: connection %q: %w", name, err)
		}
		if _, err := ParseSecurityMode(cc.SecurityMode); err != nil {
			return nil, fmt.Errorf("uaconnect: connection %q: %w", name, err)
		}
	}
	return &cfg, nil
}

// Options translates the connection configuration into options for
// NewServerConnection.
func (c ConnectionConfig) Options() []Option {
	var opts []Option
	if c.Username != "" {
		opts = append(opts, WithAuth(c.Username, c.Password))
	}
	policy, _ := ParseSecurityPolicy(c.SecurityPolicy)
	mode, _ := ParseSecurityMode(c.SecurityMode)
	opts = append(opts, WithSecurity(policy, mode))
	if c.CertificateFile != "" || c.PrivateKeyFile != "" {
		opts = append(opts, WithCertificate(c.CertificateFile, c.PrivateKeyFile))
	}
	if c.ApplicationURI != "" {
		opts = append(opts, WithApplicationURI(c.ApplicationURI))
	}
	if c.ConnectTimeoutMillis > 0 {
		opts = append(opts, WithConnectTimeout(time.Duration(c.ConnectTimeoutMillis)*time.Millisecond))
	}

	defaults := SubscriptionParams{
		PublishingInterval: DefaultPublishingInterval,
		LifetimeCount:      DefaultLifetimeCount,
		MaxKeepAliveCount:  DefaultMaxKeepAliveCount,
	}
	if c.PublishingIntervalMillis > 0 {
		defaults.PublishingInterval = time.Duration(c.PublishingIntervalMillis) * time.Millisecond
	}
	if c.LifetimeCount > 0 {
		defaults.LifetimeCount = c.LifetimeCount
	}
	if c.MaxKeepAliveCount > 0 {
		defaults.MaxKeepAliveCount = c.MaxKeepAliveCount
	}
	opts = append(opts, WithSubscriptionDefaults(defaults))
	return opts
}

// BuildRegistry creates a connection per configured entry and registers
// it. On failure the connections created so far are closed.
func BuildRegistry(cfg *Config, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry(logger)
	for name, cc := range cfg.Connections {
		opts := cc.Options()
		if logger != nil {
			opts = append(opts, WithLogger(logger.With(slog.String("connection", name))))
		}
		conn, err := NewServerConnection(cc.Endpoint, opts...)
		if err != nil {
			registry.CloseAll()
			return nil, fmt.Errorf("uaconnect: connection %q: %w", name, err)
		}
		if err := registry.Register(name, conn); err != nil {
			conn.Close()
			registry.CloseAll()
			return nil, fmt.Errorf("uaconnect: connection %q: %w", name, err)
		}
	}
	return registry, nil
}

// ParseSecurityPolicy parses a security policy name or URI. An empty
// string means no security.
func ParseSecurityPolicy(s string) (SecurityPolicy, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return SecurityPolicyNone, nil
	case "basic128rsa15":
		return SecurityPolicyBasic128Rsa15, nil
	case "basic256":
		return SecurityPolicyBasic256, nil
	case "basic256sha256":
		return SecurityPolicyBasic256Sha256, nil
	case "aes128sha256", "aes128_sha256_rsaoaep":
		return SecurityPolicyAes128Sha256, nil
	case "aes256sha256", "aes256_sha256_rsapss":
		return SecurityPolicyAes256Sha256, nil
	}
	if strings.HasPrefix(s, "http://opcfoundation.org/UA/SecurityPolicy#") {
		return SecurityPolicy(s), nil
	}
	return "", fmt.Errorf("uaconnect: unknown security policy %q", s)
}

// ParseSecurityMode parses a message security mode name. An empty
// string means no security.
func ParseSecurityMode(s string) (MessageSecurityMode, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return MessageSecurityModeNone, nil
	case "sign":
		return MessageSecurityModeSign, nil
	case "signandencrypt", "sign&encrypt":
		return MessageSecurityModeSignAndEncrypt, nil
	}
	return MessageSecurityModeInvalid, fmt.Errorf("uaconnect: unknown security mode %q", s)
}
