// Package polerr provides the SDK's unified error type, modeled on
// infrastructure/errors.ServiceError from the service-layer codebase this
// SDK's ambient stack is grounded on, adapted from HTTP-status codes to the
// governance error taxonomy in spec §7.
package polerr

import "fmt"

// ErrorCode enumerates the SDK's error categories.
type ErrorCode string

const (
	CodeArgument         ErrorCode = "ARGUMENT"
	CodeConfig           ErrorCode = "CONFIG"
	CodePlugin           ErrorCode = "PLUGIN"
	CodeNetwork          ErrorCode = "NETWORK"
	CodeServerUser       ErrorCode = "SERVER_USER"
	CodeServerError      ErrorCode = "SERVER_ERROR"
	CodeInvalidResponse  ErrorCode = "INVALID_RESPONSE"
	CodeRPCTimeout       ErrorCode = "RPC_TIMEOUT"
	CodeServiceNotFound  ErrorCode = "SERVICE_NOT_FOUND"
	CodeInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"
	CodeLocationMismatch ErrorCode = "LOCATION_MISMATCH"
	CodeMetadataMismatch ErrorCode = "METADATA_MISMATCH"
	CodeRouteRuleNotMatch ErrorCode = "ROUTE_RULE_NOT_MATCH"
	CodeCircuitBreak     ErrorCode = "CIRCUIT_BREAK"
	CodeRequestLimit     ErrorCode = "REQUEST_LIMIT"
	CodeCrypto           ErrorCode = "CRYPTO"
	CodeInstanceInfo     ErrorCode = "INSTANCE_INFO"
	CodeInternal         ErrorCode = "INTERNAL"
)

// PolarisError is the uniform error type surfaced across the SDK's public
// façades.
type PolarisError struct {
	Code    ErrorCode
	Message string
	Cause   error

	// RuleName and Fallback are populated for CodeCircuitBreak.
	RuleName string
	Fallback interface{}
}

func (e *PolarisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *PolarisError) Unwrap() error {
	return e.Cause
}

// New builds a bare PolarisError.
func New(code ErrorCode, message string) *PolarisError {
	return &PolarisError{Code: code, Message: message}
}

// Wrap attaches a cause to a new PolarisError.
func Wrap(code ErrorCode, message string, cause error) *PolarisError {
	return &PolarisError{Code: code, Message: message, Cause: cause}
}

// Is reports whether err carries the given code, unwrapping through
// standard error wrapping.
func Is(err error, code ErrorCode) bool {
	var pe *PolarisError
	for err != nil {
		if p, ok := err.(*PolarisError); ok {
			pe = p
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return pe != nil && pe.Code == code
}

func Argument(format string, args ...interface{}) *PolarisError {
	return New(CodeArgument, fmt.Sprintf(format, args...))
}

func Config(format string, args ...interface{}) *PolarisError {
	return New(CodeConfig, fmt.Sprintf(format, args...))
}

func Plugin(name string, cause error) *PolarisError {
	return Wrap(CodePlugin, fmt.Sprintf("plugin %q unresolved or failed init", name), cause)
}

func Network(cause error) *PolarisError {
	return Wrap(CodeNetwork, "transport error", cause)
}

func RPCTimeout() *PolarisError {
	return New(CodeRPCTimeout, "rpc timed out")
}

func ServerError(cause error) *PolarisError {
	return Wrap(CodeServerError, "server returned an error code", cause)
}

func ServerUserError(message string) *PolarisError {
	return New(CodeServerUser, message)
}

func InvalidResponse(message string) *PolarisError {
	return New(CodeInvalidResponse, message)
}

func ServiceNotFound(key fmt.Stringer) *PolarisError {
	return New(CodeServiceNotFound, fmt.Sprintf("service %s not found", key))
}

func InstanceNotFound(message string) *PolarisError {
	return New(CodeInstanceNotFound, message)
}

func LocationMismatch(message string) *PolarisError {
	return New(CodeLocationMismatch, message)
}

func MetadataMismatch() *PolarisError {
	return New(CodeMetadataMismatch, "no instance matches the requested metadata")
}

func RouteRuleNotMatch(message string) *PolarisError {
	return New(CodeRouteRuleNotMatch, message)
}

func CircuitBreak(ruleName string, fallback interface{}) *PolarisError {
	return &PolarisError{Code: CodeCircuitBreak, Message: "request aborted by circuit breaker", RuleName: ruleName, Fallback: fallback}
}

func RequestLimit(message string) *PolarisError {
	return New(CodeRequestLimit, message)
}

func Crypto(cause error) *PolarisError {
	return Wrap(CodeCrypto, "cryptographic operation failed", cause)
}

func InstanceInfo(message string) *PolarisError {
	return New(CodeInstanceInfo, message)
}

func Internal(message string) *PolarisError {
	return New(CodeInternal, message)
}
