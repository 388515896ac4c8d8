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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeID(t *testing.T) {
	tests := []struct {
		input string
		want  NodeID
	}{
		{"i=2258", NewNumericNodeID(0, 2258)},
		{"ns=2;i=1001", NewNumericNodeID(2, 1001)},
		{"ns=2;s=Temperature", NewStringNodeID(2, "Temperature")},
		{"s=Plant.Line1.Speed", NewStringNodeID(0, "Plant.Line1.Speed")},
		{"ns=3;s=with;semicolon", NewStringNodeID(3, "with;semicolon")},
		{"ns=1;b=abc", NewOpaqueNodeID(1, []byte("abc"))},
	}
	for _, tt := range tests {
		got, err := ParseNodeID(tt.input)
		require.NoError(t, err, tt.input)
		assert.True(t, got.Equal(tt.want), "%s parsed to %s", tt.input, got)
	}
}

func TestParseNodeIDErrors(t *testing.T) {
	inputs := []string{
		"",
		"ns=2",
		"ns=foo;i=1",
		"ns=99999;i=1",
		"ns=2;x=1",
		"ns=2;i=notanumber",
		"i=",
	}
	for _, input := range inputs {
		_, err := ParseNodeID(input)
		assert.ErrorIs(t, err, ErrInvalidNodeID, "input %q", input)
	}
}

func TestNodeIDKeyRoundTrip(t *testing.T) {
	for _, s := range []string{"ns=0;i=2258", "ns=2;i=1001", "ns=2;s=Temperature"} {
		node, err := ParseNodeID(s)
		require.NoError(t, err)
		assert.Equal(t, s, node.Key())
	}
}

func TestStringNodeIDIdentifier(t *testing.T) {
	node := NewStringNodeID(2, "Temperature")
	assert.Equal(t, "Temperature", node.StringID)
	assert.Equal(t, "ns=2;s=Temperature", node.String())
}

func TestParseNodeIDGUID(t *testing.T) {
	guid := [16]byte{
		0x09, 0x08, 0x7e, 0x75, 0x8e, 0x5e, 0x49, 0x9b,
		0x95, 0x4f, 0xf2, 0xa9, 0x60, 0x3d, 0xb2, 0x8a,
	}
	node := NewGUIDNodeID(3, guid)

	// The canonical key parses back to the same node.
	parsed, err := ParseNodeID(node.Key())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(node))
	assert.Equal(t, guid, parsed.GUID)

	// The dashed GUID notation is accepted too.
	dashed, err := ParseNodeID("ns=3;g=09087e75-8e5e-499b-954f-f2a9603db28a")
	require.NoError(t, err)
	assert.True(t, dashed.Equal(node))

	_, err = ParseNodeID("ns=3;g=nothex")
	assert.ErrorIs(t, err, ErrInvalidNodeID)
	_, err = ParseNodeID("g=1234")
	assert.ErrorIs(t, err, ErrInvalidNodeID, "GUID identifiers must be 16 bytes")
}

func TestNodeIDKeyDistinguishesTypes(t *testing.T) {
	// The numeric node 42 and the string node "42" must not collide.
	numeric := NewNumericNodeID(2, 42)
	str := NewStringNodeID(2, "42")
	assert.NotEqual(t, numeric.Key(), str.Key())
	assert.False(t, numeric.Equal(str))

	// Same identifier in different namespaces are different nodes.
	assert.False(t, NewNumericNodeID(1, 42).Equal(NewNumericNodeID(2, 42)))
}

func TestNewOpaqueNodeIDCopiesBytes(t *testing.T) {
	raw := []byte{1, 2, 3}
	node := NewOpaqueNodeID(2, raw)
	raw[0] = 99
	assert.Equal(t, []byte{1, 2, 3}, node.Opaque)
}

func TestNewVariantTypeInference(t *testing.T) {
	tests := []struct {
		value interface{}
		typ   TypeID
	}{
		{true, TypeBoolean},
		{int8(-1), TypeSByte},
		{uint8(1), TypeByte},
		{int16(-1), TypeInt16},
		{uint16(1), TypeUInt16},
		{int32(-1), TypeInt32},
		{uint32(1), TypeUInt32},
		{int64(-1), TypeInt64},
		{uint64(1), TypeUInt64},
		{float32(1.5), TypeFloat},
		{1.5, TypeDouble},
		{"hello", TypeString},
		{time.Unix(0, 0), TypeDateTime},
		{[]byte{1, 2}, TypeByteString},
		{NewNumericNodeID(0, 1), TypeNodeID},
		{StatusGood, TypeStatusCode},
	}
	for _, tt := range tests {
		v := NewVariant(tt.value)
		assert.Equal(t, tt.typ, v.Type, "value %v", tt.value)
		assert.False(t, v.IsNull())
	}

	// Untyped int maps onto Int64.
	v := NewVariant(7)
	assert.Equal(t, TypeInt64, v.Type)
	assert.Equal(t, int64(7), v.Value)
}

func TestNewVariantNullCases(t *testing.T) {
	assert.True(t, NewVariant(nil).IsNull())
	assert.True(t, NewVariant(struct{}{}).IsNull(), "unsupported types become null")
	assert.True(t, Variant{}.IsNull())
	assert.Equal(t, "<null>", Variant{}.String())
}

func TestVariantCloneDetachesByteString(t *testing.T) {
	orig := NewVariant([]byte{1, 2, 3})
	clone := orig.Clone()

	orig.Value.([]byte)[0] = 99
	assert.Equal(t, []byte{1, 2, 3}, clone.Value)
	assert.Equal(t, TypeByteString, clone.Type)

	// Scalar clones are plain copies.
	v := NewVariant(int32(5)).Clone()
	assert.Equal(t, int32(5), v.Value)
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "closed", StateClosed.String())
}
