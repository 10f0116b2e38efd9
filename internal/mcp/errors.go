// Package mcp implements the Model Context Protocol server for iiifstore.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

// Custom JSON-RPC error codes for iiifstore.
const (
	// ErrCodeStoreUnavailable indicates the data directory is locked or
	// unreadable.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeResourceNotFound indicates no stored resource has the id.
	ErrCodeResourceNotFound = mcp.CodeResourceNotFound

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeUpstream indicates a remote IIIF or image service failed.
	ErrCodeUpstream = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = jsonrpc.CodeMethodNotFound
	ErrCodeInvalidParams  = jsonrpc.CodeInvalidParams
	ErrCodeInternalError  = jsonrpc.CodeInternalError
)

// MapError converts internal errors to JSON-RPC errors. The iiifstore error
// code, when there is one, is carried in the error data.
func MapError(err error) *jsonrpc.Error {
	if err == nil {
		return nil
	}

	var wire *jsonrpc.Error
	if errors.As(err, &wire) {
		return wire
	}

	if ie, ok := ierrors.As(err); ok {
		return mapIIIFError(ie)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &jsonrpc.Error{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &jsonrpc.Error{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &jsonrpc.Error{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *jsonrpc.Error {
	return &jsonrpc.Error{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(ref string) *jsonrpc.Error {
	return &jsonrpc.Error{
		Code:    ErrCodeResourceNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", ref),
		Data:    errorData(map[string]string{"id": ref}),
	}
}

func mapIIIFError(ie *ierrors.IIIFError) *jsonrpc.Error {
	message := ie.Message
	if ie.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ie.Message, ie.Suggestion)
	}
	data := map[string]string{"code": ie.Code}
	for k, v := range ie.Details {
		data[k] = v
	}
	out := &jsonrpc.Error{Message: message, Data: errorData(data)}

	switch ie.Category {
	case ierrors.CategoryValidation:
		if ie.Code == ierrors.ErrCodeResourceNotFound {
			out.Code = ErrCodeResourceNotFound
		} else {
			out.Code = ErrCodeInvalidParams
		}
	case ierrors.CategoryStorage:
		switch ie.Code {
		case ierrors.ErrCodeStoreLocked, ierrors.ErrCodeCorruptIndex:
			out.Code = ErrCodeStoreUnavailable
		default:
			out.Code = ErrCodeInternalError
		}
	case ierrors.CategoryNetwork:
		out.Code = ErrCodeUpstream
	default: // config, internal and unknown
		out.Code = ErrCodeInternalError
	}
	return out
}

func errorData(v map[string]string) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
