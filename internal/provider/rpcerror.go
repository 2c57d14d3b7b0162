package provider

import (
	"errors"
	"fmt"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
)

// RPCError is an error returned by a wallet provider.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode makes the code reachable through the coder interface.
func (e *RPCError) ErrorCode() int { return e.Code }

type coder interface {
	ErrorCode() int
}

// Code extracts the provider error code from err, or 0.
func Code(err error) int {
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return 0
}

// Message extracts the provider-supplied message, falling back to err.Error().
func Message(err error) string {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Message != "" {
		return rpcErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
