package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned for frames that are neither a request nor a response.
var ErrMalformed = errors.New("malformed json-rpc frame")

// envelope is used to classify an incoming frame before full decoding.
type envelope struct {
	ID      *uint64         `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Encode marshals a request or response to its JSON frame.
func Encode(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}
	case *Response:
		if m.JSONRPC == "" {
			m.JSONRPC = Version
		}
	default:
		return nil, fmt.Errorf("cannot encode %T", msg)
	}
	return json.Marshal(msg)
}

// Decode parses a frame. Exactly one of the returned request and response is
// non-nil when err is nil.
func Decode(data []byte) (*Request, *Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.ID == nil {
		return nil, nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}

	if env.Method != "" {
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := req.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &req, nil, nil
	}

	if env.Result == nil && env.Error == nil {
		return nil, nil, fmt.Errorf("%w: response %d has neither result nor error", ErrMalformed, *env.ID)
	}
	return nil, &Response{
		ID:      *env.ID,
		JSONRPC: env.JSONRPC,
		Result:  env.Result,
		Error:   env.Error,
	}, nil
}
