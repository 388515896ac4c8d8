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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeSeverity(t *testing.T) {
	assert.True(t, StatusGood.IsGood())
	assert.False(t, StatusGood.IsBad())

	assert.True(t, StatusUncertain.IsUncertain())
	assert.False(t, StatusUncertain.IsGood())
	assert.False(t, StatusUncertain.IsBad())

	assert.True(t, StatusBadTimeout.IsBad())
	assert.False(t, StatusBadTimeout.IsGood())
}

func TestStatusCodeStringAndDescription(t *testing.T) {
	assert.Equal(t, "Good", StatusGood.String())
	assert.Equal(t, "BadTimeout", StatusBadTimeout.String())
	assert.Contains(t, StatusBadTimeout.Error(), "BadTimeout")
	assert.Contains(t, StatusBadTimeout.Error(), "0x800A0000")

	unknown := StatusCode(0x812F0000)
	assert.Contains(t, unknown.Error(), "0x812F0000")
}

func TestIsConnectionFatalCodes(t *testing.T) {
	fatal := []StatusCode{
		StatusBadCommunicationError,
		StatusBadConnectionClosed,
		StatusBadServerNotConnected,
		StatusBadSessionIdInvalid,
	}
	for _, sc := range fatal {
		assert.True(t, sc.IsConnectionFatal(), sc.String())
		assert.True(t, IsConnectionFatal(sc), sc.String())
	}

	perOperation := []StatusCode{
		StatusGood,
		StatusBadTimeout,
		StatusBadNodeIdUnknown,
		StatusBadUserAccessDenied,
		StatusBadOutOfMemory,
		StatusBadSubscriptionIdInvalid,
		StatusBadMonitoredItemIdInvalid,
	}
	for _, sc := range perOperation {
		assert.False(t, sc.IsConnectionFatal(), sc.String())
	}

	assert.False(t, IsConnectionFatal(nil))
	assert.False(t, IsConnectionFatal(errors.New("some transport thing")))
}

func TestStatusFromError(t *testing.T) {
	assert.Equal(t, StatusGood, StatusFromError(nil))
	assert.Equal(t, StatusBadTimeout, StatusFromError(StatusBadTimeout))
	assert.Equal(t, StatusBadTimeout, StatusFromError(fmt.Errorf("read: %w", StatusBadTimeout)))

	uaErr := NewUAError("connect", StatusBadConnectionRejected, "refused")
	assert.Equal(t, StatusBadConnectionRejected, StatusFromError(uaErr))
	assert.Equal(t, StatusBadConnectionRejected, StatusFromError(fmt.Errorf("dial: %w", uaErr)))

	assert.Equal(t, StatusBadInternalError, StatusFromError(errors.New("opaque")))
}

func TestUAErrorIs(t *testing.T) {
	err := NewUAError("read", StatusBadNodeIdUnknown, "")
	assert.True(t, errors.Is(err, NewUAError("write", StatusBadNodeIdUnknown, "other op, same code")))
	assert.False(t, errors.Is(err, NewUAError("read", StatusBadTimeout, "")))
	assert.False(t, errors.Is(err, ErrNotConnected))
}

func TestUAErrorMessage(t *testing.T) {
	withMsg := NewUAError("connect", StatusBadTimeout, "gave up")
	assert.Contains(t, withMsg.Error(), "connect")
	assert.Contains(t, withMsg.Error(), "gave up")

	bare := NewUAError("read", StatusBadTimeout, "")
	assert.Contains(t, bare.Error(), "read")
	assert.NotContains(t, bare.Error(), ": :")
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsTimeout(StatusBadTimeout))
	assert.True(t, IsTimeout(StatusBadRequestTimeout))
	assert.False(t, IsTimeout(StatusBadNodeIdUnknown))

	assert.True(t, IsNotConnected(ErrNotConnected))
	assert.True(t, IsNotConnected(StatusBadServerNotConnected))
	assert.False(t, IsNotConnected(StatusBadTimeout))

	assert.True(t, IsUserAccessDenied(StatusBadUserAccessDenied))
	assert.True(t, IsStatusCode(fmt.Errorf("w: %w", StatusBadNodeIdUnknown), StatusBadNodeIdUnknown))
}
