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

// Package uaconnect provides a resilient client-side connection manager
// for OPC UA servers. A ServerConnection serializes read, write, and
// monitored-item requests from many concurrent callers onto a single
// session, survives disconnects, and transparently re-establishes the
// session and any active subscriptions.
package uaconnect

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NodeIDType represents the type of a NodeID identifier.
type NodeIDType uint8

// NodeID identifier types.
const (
	NodeIDTypeNumeric NodeIDType = iota
	NodeIDTypeString
	NodeIDTypeGUID
	NodeIDTypeOpaque
)

// NodeID identifies one data point on the server (namespace + local
// identifier). NodeIDs are value types; Key returns a canonical form
// suitable for use as a map key.
type NodeID struct {
	Type      NodeIDType
	Namespace uint16
	Numeric   uint32
	StringID  string
	GUID      [16]byte
	Opaque    []byte
}

// NewNumericNodeID creates a new numeric NodeID.
func NewNumericNodeID(namespace uint16, id uint32) NodeID {
	return NodeID{
		Type:      NodeIDTypeNumeric,
		Namespace: namespace,
		Numeric:   id,
	}
}

// NewStringNodeID creates a new string NodeID.
func NewStringNodeID(namespace uint16, id string) NodeID {
	return NodeID{
		Type:      NodeIDTypeString,
		Namespace: namespace,
		StringID:  id,
	}
}

// NewGUIDNodeID creates a new GUID NodeID.
func NewGUIDNodeID(namespace uint16, guid [16]byte) NodeID {
	return NodeID{
		Type:      NodeIDTypeGUID,
		Namespace: namespace,
		GUID:      guid,
	}
}

// NewOpaqueNodeID creates a new opaque (byte string) NodeID. The
// identifier bytes are copied.
func NewOpaqueNodeID(namespace uint16, id []byte) NodeID {
	b := make([]byte, len(id))
	copy(b, id)
	return NodeID{
		Type:      NodeIDTypeOpaque,
		Namespace: namespace,
		Opaque:    b,
	}
}

// ParseNodeID parses a NodeID in the standard XML notation, e.g.
// "ns=2;s=Temperature", "ns=2;i=1001" or "i=2258" (namespace 0).
func ParseNodeID(s string) (NodeID, error) {
	rest := s
	var ns uint16
	if strings.HasPrefix(rest, "ns=") {
		idx := strings.Index(rest, ";")
		if idx < 0 {
			return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
		}
		n, err := strconv.ParseUint(rest[3:idx], 10, 16)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: bad namespace in %q", ErrInvalidNodeID, s)
		}
		ns = uint16(n)
		rest = rest[idx+1:]
	}
	if len(rest) < 2 || rest[1] != '=' {
		return NodeID{}, fmt.Errorf("%w: %q", ErrInvalidNodeID, s)
	}
	switch rest[0] {
	case 'i':
		n, err := strconv.ParseUint(rest[2:], 10, 32)
		if err != nil {
			return NodeID{}, fmt.Errorf("%w: bad numeric identifier in %q", ErrInvalidNodeID, s)
		}
		return NewNumericNodeID(ns, uint32(n)), nil
	case 's':
		return NewStringNodeID(ns, rest[2:]), nil
	case 'g':
		raw, err := hex.DecodeString(strings.ReplaceAll(rest[2:], "-", ""))
		if err != nil || len(raw) != 16 {
			return NodeID{}, fmt.Errorf("%w: bad GUID identifier in %q", ErrInvalidNodeID, s)
		}
		var g [16]byte
		copy(g[:], raw)
		return NewGUIDNodeID(ns, g), nil
	case 'b':
		return NewOpaqueNodeID(ns, []byte(rest[2:])), nil
	default:
		return NodeID{}, fmt.Errorf("%w: unsupported identifier type %q", ErrInvalidNodeID, rest[:1])
	}
}

// Key returns the canonical string form of the NodeID. Two NodeIDs
// identify the same node if and only if their keys are equal, which
// makes the key usable where NodeID itself cannot be (the Opaque
// variant is not comparable).
func (n NodeID) Key() string {
	switch n.Type {
	case NodeIDTypeNumeric:
		return fmt.Sprintf("ns=%d;i=%d", n.Namespace, n.Numeric)
	case NodeIDTypeString:
		return fmt.Sprintf("ns=%d;s=%s", n.Namespace, n.StringID)
	case NodeIDTypeGUID:
		return fmt.Sprintf("ns=%d;g=%x", n.Namespace, n.GUID)
	case NodeIDTypeOpaque:
		return fmt.Sprintf("ns=%d;b=%x", n.Namespace, n.Opaque)
	default:
		return fmt.Sprintf("ns=%d;?", n.Namespace)
	}
}

// String returns the string representation of the NodeID.
func (n NodeID) String() string {
	return n.Key()
}

// Equal reports whether two NodeIDs identify the same node.
func (n NodeID) Equal(other NodeID) bool {
	return n.Key() == other.Key()
}

// TypeID represents an OPC UA built-in type.
type TypeID uint8

// OPC UA built-in types.
const (
	TypeNull           TypeID = 0
	TypeBoolean        TypeID = 1
	TypeSByte          TypeID = 2
	TypeByte           TypeID = 3
	TypeInt16          TypeID = 4
	TypeUInt16         TypeID = 5
	TypeInt32          TypeID = 6
	TypeUInt32         TypeID = 7
	TypeInt64          TypeID = 8
	TypeUInt64         TypeID = 9
	TypeFloat          TypeID = 10
	TypeDouble         TypeID = 11
	TypeString         TypeID = 12
	TypeDateTime       TypeID = 13
	TypeGUID           TypeID = 14
	TypeByteString     TypeID = 15
	TypeXMLElement     TypeID = 16
	TypeNodeID         TypeID = 17
	TypeExpandedNodeID TypeID = 18
	TypeStatusCode     TypeID = 19
	TypeQualifiedName  TypeID = 20
	TypeLocalizedText  TypeID = 21
)

// String returns the name of the built-in type.
func (t TypeID) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeBoolean:
		return "Boolean"
	case TypeSByte:
		return "SByte"
	case TypeByte:
		return "Byte"
	case TypeInt16:
		return "Int16"
	case TypeUInt16:
		return "UInt16"
	case TypeInt32:
		return "Int32"
	case TypeUInt32:
		return "UInt32"
	case TypeInt64:
		return "Int64"
	case TypeUInt64:
		return "UInt64"
	case TypeFloat:
		return "Float"
	case TypeDouble:
		return "Double"
	case TypeString:
		return "String"
	case TypeDateTime:
		return "DateTime"
	case TypeGUID:
		return "GUID"
	case TypeByteString:
		return "ByteString"
	case TypeNodeID:
		return "NodeId"
	case TypeStatusCode:
		return "StatusCode"
	case TypeQualifiedName:
		return "QualifiedName"
	case TypeLocalizedText:
		return "LocalizedText"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// Variant represents a typed scalar or array payload. The zero Variant
// is the null value. Variants are treated as immutable once handed to
// the connection; Clone produces an independent copy with its own
// backing buffer for slice payloads.
type Variant struct {
	Type  TypeID
	Value interface{}
}

// NewVariant creates a Variant from a Go value, inferring the type
// descriptor. Unsupported Go types yield a null Variant.
func NewVariant(v interface{}) Variant {
	switch v.(type) {
	case nil:
		return Variant{}
	case bool:
		return Variant{Type: TypeBoolean, Value: v}
	case int8:
		return Variant{Type: TypeSByte, Value: v}
	case uint8:
		return Variant{Type: TypeByte, Value: v}
	case int16:
		return Variant{Type: TypeInt16, Value: v}
	case uint16:
		return Variant{Type: TypeUInt16, Value: v}
	case int32:
		return Variant{Type: TypeInt32, Value: v}
	case uint32:
		return Variant{Type: TypeUInt32, Value: v}
	case int:
		return Variant{Type: TypeInt64, Value: int64(v.(int))}
	case int64:
		return Variant{Type: TypeInt64, Value: v}
	case uint64:
		return Variant{Type: TypeUInt64, Value: v}
	case float32:
		return Variant{Type: TypeFloat, Value: v}
	case float64:
		return Variant{Type: TypeDouble, Value: v}
	case string:
		return Variant{Type: TypeString, Value: v}
	case time.Time:
		return Variant{Type: TypeDateTime, Value: v}
	case []byte:
		return Variant{Type: TypeByteString, Value: v}
	case NodeID:
		return Variant{Type: TypeNodeID, Value: v}
	case StatusCode:
		return Variant{Type: TypeStatusCode, Value: v}
	default:
		return Variant{}
	}
}

// IsNull reports whether the Variant holds no value.
func (v Variant) IsNull() bool {
	return v.Type == TypeNull || v.Value == nil
}

// Clone returns a copy of the Variant. Byte-string payloads get their
// own backing buffer so the copy cannot alias the original.
func (v Variant) Clone() Variant {
	if b, ok := v.Value.([]byte); ok {
		nb := make([]byte, len(b))
		copy(nb, b)
		return Variant{Type: v.Type, Value: nb}
	}
	return v
}

// String returns a short representation of the Variant for logging.
func (v Variant) String() string {
	if v.IsNull() {
		return "<null>"
	}
	return fmt.Sprintf("%s:%v", v.Type, v.Value)
}

// DataValue represents a value read from the server together with its
// quality and timestamps.
type DataValue struct {
	Value           Variant
	StatusCode      StatusCode
	SourceTimestamp time.Time
	ServerTimestamp time.Time
}

// MessageSecurityMode represents the security mode for messages.
type MessageSecurityMode uint32

// Message security modes.
const (
	MessageSecurityModeInvalid        MessageSecurityMode = 0
	MessageSecurityModeNone           MessageSecurityMode = 1
	MessageSecurityModeSign           MessageSecurityMode = 2
	MessageSecurityModeSignAndEncrypt MessageSecurityMode = 3
)

// String returns the string representation of a MessageSecurityMode.
func (m MessageSecurityMode) String() string {
	switch m {
	case MessageSecurityModeNone:
		return "None"
	case MessageSecurityModeSign:
		return "Sign"
	case MessageSecurityModeSignAndEncrypt:
		return "SignAndEncrypt"
	default:
		return "Invalid"
	}
}

// SecurityPolicy represents an OPC UA security policy.
type SecurityPolicy string

// Security policies.
const (
	SecurityPolicyNone           SecurityPolicy = "http://opcfoundation.org/UA/SecurityPolicy#None"
	SecurityPolicyBasic128Rsa15  SecurityPolicy = "http://opcfoundation.org/UA/SecurityPolicy#Basic128Rsa15"
	SecurityPolicyBasic256       SecurityPolicy = "http://opcfoundation.org/UA/SecurityPolicy#Basic256"
	SecurityPolicyBasic256Sha256 SecurityPolicy = "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256"
	SecurityPolicyAes128Sha256   SecurityPolicy = "http://opcfoundation.org/UA/SecurityPolicy#Aes128_Sha256_RsaOaep"
	SecurityPolicyAes256Sha256   SecurityPolicy = "http://opcfoundation.org/UA/SecurityPolicy#Aes256_Sha256_RsaPss"
)

// ConnectionState represents the state of the managed connection.
type ConnectionState int

// Connection states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the string representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Defaults for the connection and its subscriptions.
const (
	// DefaultTimeout is the default timeout for OPC UA operations.
	DefaultTimeout = 5 * time.Second

	// DefaultPort is the default OPC UA TCP port.
	DefaultPort = 4840

	// DefaultPublishingInterval is the publishing interval requested
	// for new subscriptions.
	DefaultPublishingInterval = 500 * time.Millisecond

	// DefaultLifetimeCount is the lifetime count requested for new
	// subscriptions.
	DefaultLifetimeCount uint32 = 10000

	// DefaultMaxKeepAliveCount is the max keep-alive count requested
	// for new subscriptions.
	DefaultMaxKeepAliveCount uint32 = 10

	// DefaultSamplingInterval is the sampling interval requested for
	// monitored items that do not specify one.
	DefaultSamplingInterval = 250 * time.Millisecond

	// DefaultQueueSize is the server-side queue size requested for
	// monitored items.
	DefaultQueueSize uint32 = 10
)
