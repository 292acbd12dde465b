package wire

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Version is the JSON-RPC protocol version string.
const Version = "2.0"

// JSON-RPC error codes used by relays.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var lastID atomic.Uint64

func init() {
	lastID.Store(uint64(time.Now().UnixMicro()) * 1000)
}

// NextID returns a new request ID.
func NextID() uint64 {
	return lastID.Add(1)
}

// Request is a JSON-RPC request in either direction.
type Request struct {
	ID      uint64          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request with a fresh ID and the given params.
func NewRequest(method string, params any) (*Request, error) {
	req := &Request{
		ID:      NextID(),
		JSONRPC: Version,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		req.Params = raw
	}
	return req, nil
}

// Validate checks the request envelope.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("unsupported jsonrpc version %q", r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("request %d has no method", r.ID)
	}
	return nil
}

// DecodeParams unmarshals the request params into v.
func (r *Request) DecodeParams(v any) error {
	if len(r.Params) == 0 {
		return fmt.Errorf("request %d has no params", r.ID)
	}
	return json.Unmarshal(r.Params, v)
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	ID      uint64          `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewResult builds a successful response to the request with the given id.
func NewResult(id uint64, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{ID: id, JSONRPC: Version, Result: raw}, nil
}

// NewErrorResponse builds an error response to the request with the given id.
func NewErrorResponse(id uint64, code int, message string) *Response {
	return &Response{
		ID:      id,
		JSONRPC: Version,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// IsSuccess reports whether the response carries a result.
func (r *Response) IsSuccess() bool {
	return r.Error == nil
}

// Err returns the response error, or nil on success.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// DecodeResult unmarshals the response result into v.
func (r *Response) DecodeResult(v any) error {
	if r.Error != nil {
		return r.Error
	}
	return json.Unmarshal(r.Result, v)
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// SubscribeParams are the params of <protocol>_subscribe.
type SubscribeParams struct {
	Topic string `json:"topic"`
}

// BatchSubscribeParams are the params of <protocol>_batchSubscribe.
type BatchSubscribeParams struct {
	Topics []string `json:"topics"`
}

// UnsubscribeParams are the params of <protocol>_unsubscribe.
type UnsubscribeParams struct {
	Topic string `json:"topic"`
	ID    string `json:"id"`
}

// SubscriptionParams are the params of an inbound <protocol>_subscription.
type SubscriptionParams struct {
	ID   string           `json:"id"`
	Data SubscriptionData `json:"data"`
}

// SubscriptionData is a message delivered on a topic.
type SubscriptionData struct {
	Topic       string `json:"topic"`
	Message     string `json:"message"`
	PublishedAt int64  `json:"publishedAt,omitempty"`
	Tag         int    `json:"tag,omitempty"`
}
