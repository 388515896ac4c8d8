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
)

// StatusCode represents an OPC UA StatusCode.
type StatusCode uint32

// StatusCode severity levels.
const (
	StatusSeverityGood      uint32 = 0x00000000
	StatusSeverityUncertain uint32 = 0x40000000
	StatusSeverityBad       uint32 = 0x80000000
	StatusSeverityMask      uint32 = 0xC0000000
)

// Status codes relevant to a client-side connection manager.
const (
	StatusGood                              StatusCode = 0x00000000
	StatusUncertain                         StatusCode = 0x40000000
	StatusBad                               StatusCode = 0x80000000
	StatusBadUnexpectedError                StatusCode = 0x80010000
	StatusBadInternalError                  StatusCode = 0x80020000
	StatusBadOutOfMemory                    StatusCode = 0x80030000
	StatusBadResourceUnavailable            StatusCode = 0x80040000
	StatusBadCommunicationError             StatusCode = 0x80050000
	StatusBadEncodingError                  StatusCode = 0x80060000
	StatusBadDecodingError                  StatusCode = 0x80070000
	StatusBadUnknownResponse                StatusCode = 0x80090000
	StatusBadTimeout                        StatusCode = 0x800A0000
	StatusBadServiceUnsupported             StatusCode = 0x800B0000
	StatusBadShutdown                       StatusCode = 0x800C0000
	StatusBadServerNotConnected             StatusCode = 0x800D0000
	StatusBadServerHalted                   StatusCode = 0x800E0000
	StatusBadNothingToDo                    StatusCode = 0x800F0000
	StatusBadTooManyOperations              StatusCode = 0x80100000
	StatusBadTooManyMonitoredItems          StatusCode = 0x80DB0000
	StatusBadCertificateInvalid             StatusCode = 0x80120000
	StatusBadSecurityChecksFailed           StatusCode = 0x80130000
	StatusBadCertificateTimeInvalid         StatusCode = 0x80140000
	StatusBadCertificateHostNameInvalid     StatusCode = 0x80160000
	StatusBadCertificateUriInvalid          StatusCode = 0x80170000
	StatusBadCertificateUntrusted           StatusCode = 0x801A0000
	StatusBadCertificateRevoked             StatusCode = 0x801D0000
	StatusBadUserAccessDenied               StatusCode = 0x801F0000
	StatusBadIdentityTokenInvalid           StatusCode = 0x80200000
	StatusBadIdentityTokenRejected          StatusCode = 0x80210000
	StatusBadSecureChannelIdInvalid         StatusCode = 0x80220000
	StatusBadInvalidTimestamp               StatusCode = 0x80230000
	StatusBadNonceInvalid                   StatusCode = 0x80240000
	StatusBadSessionIdInvalid               StatusCode = 0x80250000
	StatusBadSessionClosed                  StatusCode = 0x80260000
	StatusBadSessionNotActivated            StatusCode = 0x80270000
	StatusBadSubscriptionIdInvalid          StatusCode = 0x80280000
	StatusBadRequestHeaderInvalid           StatusCode = 0x802A0000
	StatusBadTimestampsToReturnInvalid      StatusCode = 0x802B0000
	StatusBadRequestCancelledByClient       StatusCode = 0x802C0000
	StatusBadNoCommunication                StatusCode = 0x80310000
	StatusBadWaitingForInitialData          StatusCode = 0x80320000
	StatusBadNodeIdInvalid                  StatusCode = 0x80330000
	StatusBadNodeIdUnknown                  StatusCode = 0x80340000
	StatusBadAttributeIdInvalid             StatusCode = 0x80350000
	StatusBadIndexRangeInvalid              StatusCode = 0x80360000
	StatusBadIndexRangeNoData               StatusCode = 0x80370000
	StatusBadDataEncodingInvalid            StatusCode = 0x80380000
	StatusBadDataEncodingUnsupported        StatusCode = 0x80390000
	StatusBadNotReadable                    StatusCode = 0x803A0000
	StatusBadNotWritable                    StatusCode = 0x803B0000
	StatusBadOutOfRange                     StatusCode = 0x803C0000
	StatusBadNotSupported                   StatusCode = 0x803D0000
	StatusBadNotFound                       StatusCode = 0x803E0000
	StatusBadNotImplemented                 StatusCode = 0x80400000
	StatusBadMonitoringModeInvalid          StatusCode = 0x80410000
	StatusBadMonitoredItemIdInvalid         StatusCode = 0x80420000
	StatusBadMonitoredItemFilterInvalid     StatusCode = 0x80430000
	StatusBadMonitoredItemFilterUnsupported StatusCode = 0x80440000
	StatusBadFilterNotAllowed               StatusCode = 0x80450000
	StatusBadSecurityModeRejected           StatusCode = 0x80540000
	StatusBadSecurityPolicyRejected         StatusCode = 0x80550000
	StatusBadTooManySessions                StatusCode = 0x80560000
	StatusBadTypeMismatch                   StatusCode = 0x80740000
	StatusBadTooManySubscriptions           StatusCode = 0x80770000
	StatusBadTooManyPublishRequests         StatusCode = 0x80780000
	StatusBadNoSubscription                 StatusCode = 0x80790000
	StatusBadSequenceNumberUnknown          StatusCode = 0x807A0000
	StatusBadMessageNotAvailable            StatusCode = 0x807B0000
	StatusBadTcpServerTooBusy               StatusCode = 0x807D0000
	StatusBadTcpSecureChannelUnknown        StatusCode = 0x807F0000
	StatusBadTcpMessageTooLarge             StatusCode = 0x80800000
	StatusBadTcpInternalError               StatusCode = 0x80820000
	StatusBadTcpEndpointUrlInvalid          StatusCode = 0x80830000
	StatusBadRequestInterrupted             StatusCode = 0x80840000
	StatusBadRequestTimeout                 StatusCode = 0x80850000
	StatusBadSecureChannelClosed            StatusCode = 0x80860000
	StatusBadSecureChannelTokenUnknown      StatusCode = 0x80870000
	StatusBadSequenceNumberInvalid          StatusCode = 0x80880000
	StatusBadConfigurationError             StatusCode = 0x80890000
	StatusBadNotConnected                   StatusCode = 0x808A0000
	StatusBadDeviceFailure                  StatusCode = 0x808B0000
	StatusBadOutOfService                   StatusCode = 0x808D0000
	StatusBadNoData                         StatusCode = 0x809B0000
	StatusBadDataUnavailable                StatusCode = 0x809E0000
	StatusBadInvalidArgument                StatusCode = 0x80AB0000
	StatusBadConnectionRejected             StatusCode = 0x80AC0000
	StatusBadDisconnect                     StatusCode = 0x80AD0000
	StatusBadConnectionClosed               StatusCode = 0x80AE0000
	StatusBadInvalidState                   StatusCode = 0x80AF0000
	StatusBadEndOfStream                    StatusCode = 0x80B00000
	StatusBadNoDataAvailable                StatusCode = 0x80B10000
	StatusBadWaitingForResponse             StatusCode = 0x80B20000
	StatusBadOperationAbandoned             StatusCode = 0x80B30000
	StatusBadWouldBlock                     StatusCode = 0x80B50000
	StatusBadSyntaxError                    StatusCode = 0x80B60000
	StatusBadMaxConnectionsReached          StatusCode = 0x80B70000
	StatusBadRequestTooLarge                StatusCode = 0x80B80000
	StatusBadResponseTooLarge               StatusCode = 0x80B90000
)

// statusCodeInfo contains name and description for a status code.
type statusCodeInfo struct {
	name        string
	description string
}

// statusCodeMap maps status codes to their info.
var statusCodeMap = map[StatusCode]statusCodeInfo{
	StatusGood:                              {"Good", "The operation completed successfully"},
	StatusBadUnexpectedError:                {"BadUnexpectedError", "An unexpected error occurred"},
	StatusBadInternalError:                  {"BadInternalError", "An internal error occurred"},
	StatusBadOutOfMemory:                    {"BadOutOfMemory", "Not enough memory to complete the operation"},
	StatusBadResourceUnavailable:            {"BadResourceUnavailable", "An operating system resource is not available"},
	StatusBadCommunicationError:             {"BadCommunicationError", "A low level communication error occurred"},
	StatusBadEncodingError:                  {"BadEncodingError", "Encoding halted because of invalid data"},
	StatusBadDecodingError:                  {"BadDecodingError", "Decoding halted because of invalid data"},
	StatusBadUnknownResponse:                {"BadUnknownResponse", "An unrecognized response was received from the server"},
	StatusBadTimeout:                        {"BadTimeout", "The operation timed out"},
	StatusBadServiceUnsupported:             {"BadServiceUnsupported", "The server does not support the requested service"},
	StatusBadShutdown:                       {"BadShutdown", "The operation was cancelled because the application is shutting down"},
	StatusBadServerNotConnected:             {"BadServerNotConnected", "The operation could not complete because the client is not connected to the server"},
	StatusBadServerHalted:                   {"BadServerHalted", "The server has stopped and cannot process any requests"},
	StatusBadNothingToDo:                    {"BadNothingToDo", "No processing could be done because there was nothing to do"},
	StatusBadTooManyOperations:              {"BadTooManyOperations", "The request could not be processed because it specified too many operations"},
	StatusBadTooManyMonitoredItems:          {"BadTooManyMonitoredItems", "The request could not be processed because there are too many monitored items"},
	StatusBadCertificateInvalid:             {"BadCertificateInvalid", "The certificate provided is not valid"},
	StatusBadSecurityChecksFailed:           {"BadSecurityChecksFailed", "An error occurred verifying security"},
	StatusBadCertificateTimeInvalid:         {"BadCertificateTimeInvalid", "The certificate has expired or is not yet valid"},
	StatusBadCertificateHostNameInvalid:     {"BadCertificateHostNameInvalid", "The hostname used to connect does not match a hostname in the certificate"},
	StatusBadCertificateUriInvalid:          {"BadCertificateUriInvalid", "The URI in the certificate does not match the application URI"},
	StatusBadCertificateUntrusted:           {"BadCertificateUntrusted", "The certificate is not trusted"},
	StatusBadCertificateRevoked:             {"BadCertificateRevoked", "The certificate has been revoked"},
	StatusBadUserAccessDenied:               {"BadUserAccessDenied", "User access denied"},
	StatusBadIdentityTokenInvalid:           {"BadIdentityTokenInvalid", "The user identity token is not valid"},
	StatusBadIdentityTokenRejected:          {"BadIdentityTokenRejected", "The user identity token is rejected by the server"},
	StatusBadSecureChannelIdInvalid:         {"BadSecureChannelIdInvalid", "The specified secure channel is no longer valid"},
	StatusBadInvalidTimestamp:               {"BadInvalidTimestamp", "The timestamp is outside the range allowed by the server"},
	StatusBadNonceInvalid:                   {"BadNonceInvalid", "The nonce does not appear to be a valid nonce"},
	StatusBadSessionIdInvalid:               {"BadSessionIdInvalid", "The session ID is not valid"},
	StatusBadSessionClosed:                  {"BadSessionClosed", "The session was closed by the client"},
	StatusBadSessionNotActivated:            {"BadSessionNotActivated", "The session cannot be used because it has not been activated"},
	StatusBadSubscriptionIdInvalid:          {"BadSubscriptionIdInvalid", "The subscription ID is not valid"},
	StatusBadRequestHeaderInvalid:           {"BadRequestHeaderInvalid", "The header for the request is missing or invalid"},
	StatusBadTimestampsToReturnInvalid:      {"BadTimestampsToReturnInvalid", "The timestamps to return parameter is invalid"},
	StatusBadRequestCancelledByClient:       {"BadRequestCancelledByClient", "The request was cancelled by the client"},
	StatusBadNoCommunication:                {"BadNoCommunication", "Communication with the data source is not available"},
	StatusBadWaitingForInitialData:          {"BadWaitingForInitialData", "Waiting for the server to obtain values from the data source"},
	StatusBadNodeIdInvalid:                  {"BadNodeIdInvalid", "The node ID format is not valid"},
	StatusBadNodeIdUnknown:                  {"BadNodeIdUnknown", "The node ID refers to a node that does not exist"},
	StatusBadAttributeIdInvalid:             {"BadAttributeIdInvalid", "The attribute ID is not valid for this node"},
	StatusBadIndexRangeInvalid:              {"BadIndexRangeInvalid", "The index range is invalid"},
	StatusBadIndexRangeNoData:               {"BadIndexRangeNoData", "No data exists within the range of indexes specified"},
	StatusBadDataEncodingInvalid:            {"BadDataEncodingInvalid", "The data encoding is invalid"},
	StatusBadDataEncodingUnsupported:        {"BadDataEncodingUnsupported", "The server does not support the requested data encoding"},
	StatusBadNotReadable:                    {"BadNotReadable", "The access level does not allow reading the value"},
	StatusBadNotWritable:                    {"BadNotWritable", "The access level does not allow writing the value"},
	StatusBadOutOfRange:                     {"BadOutOfRange", "The value was out of range"},
	StatusBadNotSupported:                   {"BadNotSupported", "The requested operation is not supported"},
	StatusBadNotFound:                       {"BadNotFound", "A requested item was not found"},
	StatusBadNotImplemented:                 {"BadNotImplemented", "Requested operation is not implemented"},
	StatusBadMonitoringModeInvalid:          {"BadMonitoringModeInvalid", "The monitoring mode is invalid"},
	StatusBadMonitoredItemIdInvalid:         {"BadMonitoredItemIdInvalid", "The monitored item ID is not valid"},
	StatusBadMonitoredItemFilterInvalid:     {"BadMonitoredItemFilterInvalid", "The monitored item filter parameter is not valid"},
	StatusBadMonitoredItemFilterUnsupported: {"BadMonitoredItemFilterUnsupported", "The server does not support the requested monitored item filter"},
	StatusBadFilterNotAllowed:               {"BadFilterNotAllowed", "A monitoring filter cannot be used with the attribute specified"},
	StatusBadSecurityModeRejected:           {"BadSecurityModeRejected", "The security mode does not meet the security policy requirements"},
	StatusBadSecurityPolicyRejected:         {"BadSecurityPolicyRejected", "The security policy does not meet the security policy requirements"},
	StatusBadTooManySessions:                {"BadTooManySessions", "The server has reached its maximum number of sessions"},
	StatusBadTypeMismatch:                   {"BadTypeMismatch", "The value provided does not match the expected data type"},
	StatusBadTooManySubscriptions:           {"BadTooManySubscriptions", "Too many subscriptions"},
	StatusBadTooManyPublishRequests:         {"BadTooManyPublishRequests", "Too many publish requests have been queued"},
	StatusBadNoSubscription:                 {"BadNoSubscription", "There is no subscription available for this session"},
	StatusBadSequenceNumberUnknown:          {"BadSequenceNumberUnknown", "The sequence number is unknown to the server"},
	StatusBadMessageNotAvailable:            {"BadMessageNotAvailable", "The requested notification message is no longer available"},
	StatusBadTcpServerTooBusy:               {"BadTcpServerTooBusy", "The server cannot process the request because it is too busy"},
	StatusBadTcpSecureChannelUnknown:        {"BadTcpSecureChannelUnknown", "The secure channel is not known"},
	StatusBadTcpMessageTooLarge:             {"BadTcpMessageTooLarge", "The message size exceeds the maximum allowed"},
	StatusBadTcpInternalError:               {"BadTcpInternalError", "An internal error occurred"},
	StatusBadTcpEndpointUrlInvalid:          {"BadTcpEndpointUrlInvalid", "The endpoint URL is not valid"},
	StatusBadRequestInterrupted:             {"BadRequestInterrupted", "The request was interrupted by a network error"},
	StatusBadRequestTimeout:                 {"BadRequestTimeout", "The request timed out"},
	StatusBadSecureChannelClosed:            {"BadSecureChannelClosed", "The secure channel has been closed"},
	StatusBadSecureChannelTokenUnknown:      {"BadSecureChannelTokenUnknown", "The token has expired or is not recognized"},
	StatusBadSequenceNumberInvalid:          {"BadSequenceNumberInvalid", "The sequence number is not valid"},
	StatusBadConfigurationError:             {"BadConfigurationError", "There is a configuration error"},
	StatusBadNotConnected:                   {"BadNotConnected", "The variable should receive its value from another variable but has never been configured"},
	StatusBadDeviceFailure:                  {"BadDeviceFailure", "There has been a failure in the device/data source"},
	StatusBadOutOfService:                   {"BadOutOfService", "The source of the data is not operational"},
	StatusBadNoData:                         {"BadNoData", "No data exists for the requested time range or event filter"},
	StatusBadDataUnavailable:                {"BadDataUnavailable", "Expected data is unavailable for the requested time range"},
	StatusBadInvalidArgument:                {"BadInvalidArgument", "One or more arguments are invalid"},
	StatusBadConnectionRejected:             {"BadConnectionRejected", "The server rejected the connection"},
	StatusBadDisconnect:                     {"BadDisconnect", "The connection was disconnected"},
	StatusBadConnectionClosed:               {"BadConnectionClosed", "The connection was closed"},
	StatusBadInvalidState:                   {"BadInvalidState", "The operation cannot be completed because the object is closed or in an invalid state"},
	StatusBadEndOfStream:                    {"BadEndOfStream", "Cannot move beyond end of the stream"},
	StatusBadNoDataAvailable:                {"BadNoDataAvailable", "No data is currently available"},
	StatusBadWaitingForResponse:             {"BadWaitingForResponse", "The server is waiting for a response to a request it sent"},
	StatusBadOperationAbandoned:             {"BadOperationAbandoned", "The operation was abandoned because a previous operation is still running"},
	StatusBadWouldBlock:                     {"BadWouldBlock", "Non blocking behaviour is required and the operation would block"},
	StatusBadSyntaxError:                    {"BadSyntaxError", "A value had an invalid syntax"},
	StatusBadMaxConnectionsReached:          {"BadMaxConnectionsReached", "The server has reached the maximum number of connections it supports"},
	StatusBadRequestTooLarge:                {"BadRequestTooLarge", "The request message size exceeds limits"},
	StatusBadResponseTooLarge:               {"BadResponseTooLarge", "The response message size exceeds limits"},
}

// String returns the string representation of the status code.
func (s StatusCode) String() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.name
	}
	return fmt.Sprintf("StatusCode(0x%08X)", uint32(s))
}

// Description returns a human-readable description of the status code.
func (s StatusCode) Description() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.description
	}
	// Provide severity-based fallback descriptions
	switch {
	case s.IsGood():
		return "The operation completed successfully"
	case s.IsUncertain():
		return "The operation completed with uncertain result"
	case s.IsBad():
		return "The operation failed"
	default:
		return "Unknown status"
	}
}

// Error returns a formatted error string with code, name, and description.
func (s StatusCode) Error() string {
	if info, ok := statusCodeMap[s]; ok {
		return fmt.Sprintf("%s (0x%08X): %s", info.name, uint32(s), info.description)
	}
	return fmt.Sprintf("StatusCode 0x%08X", uint32(s))
}

// IsGood returns true if the status code indicates success.
func (s StatusCode) IsGood() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityGood
}

// IsUncertain returns true if the status code indicates uncertainty.
func (s StatusCode) IsUncertain() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityUncertain
}

// IsBad returns true if the status code indicates failure.
func (s StatusCode) IsBad() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityBad
}

// IsConnectionFatal reports whether the status code indicates the
// session itself is unusable and must be rebuilt. All other bad codes
// are per-operation failures that leave the connection alone.
func (s StatusCode) IsConnectionFatal() bool {
	switch s {
	case StatusBadCommunicationError,
		StatusBadConnectionClosed,
		StatusBadServerNotConnected,
		StatusBadSessionIdInvalid:
		return true
	}
	return false
}

// UAError represents an OPC UA protocol error raised by one of the
// connection's operations.
type UAError struct {
	Op         string
	StatusCode StatusCode
	Message    string
}

// Error implements the error interface.
func (e *UAError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("uaconnect: %s: %s: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("uaconnect: %s: %s", e.Op, e.StatusCode)
}

// Is checks if the error matches the target.
func (e *UAError) Is(target error) bool {
	t, ok := target.(*UAError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

// NewUAError creates a new protocol error.
func NewUAError(op string, sc StatusCode, msg string) *UAError {
	return &UAError{
		Op:         op,
		StatusCode: sc,
		Message:    msg,
	}
}

// Common errors.
var (
	// ErrNilCallback indicates a request was constructed with a nil callback.
	ErrNilCallback = errors.New("uaconnect: callback must not be nil")

	// ErrClosed indicates the connection has been closed.
	ErrClosed = errors.New("uaconnect: connection closed")

	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("uaconnect: not connected")

	// ErrInvalidNodeID indicates an invalid NodeID was specified.
	ErrInvalidNodeID = errors.New("uaconnect: invalid node ID")

	// ErrInvalidEndpoint indicates an invalid endpoint was specified.
	ErrInvalidEndpoint = errors.New("uaconnect: invalid endpoint")

	// ErrSubscriptionNotFound indicates the subscription was not found.
	ErrSubscriptionNotFound = errors.New("uaconnect: subscription not found")

	// ErrMonitoredItemNotFound indicates the monitored item was not found.
	ErrMonitoredItemNotFound = errors.New("uaconnect: monitored item not found")

	// ErrConnectionExists indicates a connection with the same name is
	// already registered.
	ErrConnectionExists = errors.New("uaconnect: connection already registered")

	// ErrConnectionNotFound indicates no connection with the given name
	// is registered.
	ErrConnectionNotFound = errors.New("uaconnect: connection not found")
)

// StatusFromError extracts the status code carried by err. Errors that
// carry no status code map to BadInternalError, a nil error to Good.
func StatusFromError(err error) StatusCode {
	if err == nil {
		return StatusGood
	}
	var sc StatusCode
	if errors.As(err, &sc) {
		return sc
	}
	var uaErr *UAError
	if errors.As(err, &uaErr) {
		return uaErr.StatusCode
	}
	return StatusBadInternalError
}

// IsStatusCode checks if an error carries a specific status code.
func IsStatusCode(err error, code StatusCode) bool {
	return StatusFromError(err) == code
}

// IsConnectionFatal reports whether err carries a connection-fatal
// status code.
func IsConnectionFatal(err error) bool {
	return err != nil && StatusFromError(err).IsConnectionFatal()
}

// IsTimeout checks if the error is a timeout error.
func IsTimeout(err error) bool {
	return IsStatusCode(err, StatusBadTimeout) || IsStatusCode(err, StatusBadRequestTimeout)
}

// IsNotConnected checks if the error indicates not connected.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || IsStatusCode(err, StatusBadServerNotConnected)
}

// IsUserAccessDenied checks if the error indicates access denied.
func IsUserAccessDenied(err error) bool {
	return IsStatusCode(err, StatusBadUserAccessDenied)
}
