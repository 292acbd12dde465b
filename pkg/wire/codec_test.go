package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodsFor(t *testing.T) {
	m := MethodsFor("")
	assert.Equal(t, "relay_subscribe", m.Subscribe)
	assert.Equal(t, "relay_batchSubscribe", m.BatchSubscribe)
	assert.Equal(t, "relay_unsubscribe", m.Unsubscribe)
	assert.Equal(t, "relay_subscription", m.Subscription)

	m = MethodsFor("irn")
	assert.Equal(t, "irn_subscribe", m.Subscribe)
	assert.True(t, IsSubscription(m.Subscription))
	assert.False(t, IsSubscription(m.Subscribe))
}

func TestNextIDIsMonotonic(t *testing.T) {
	a := NextID()
	b := NextID()
	assert.Greater(t, b, a)
}

func TestDecode(t *testing.T) {
	t.Run("Request", func(t *testing.T) {
		req, err := NewRequest("relay_subscription", SubscriptionParams{
			ID:   "abc",
			Data: SubscriptionData{Topic: "t1", Message: "hello"},
		})
		require.NoError(t, err)

		data, err := Encode(req)
		require.NoError(t, err)

		gotReq, gotResp, err := Decode(data)
		require.NoError(t, err)
		assert.Nil(t, gotResp)
		require.NotNil(t, gotReq)
		assert.Equal(t, req.ID, gotReq.ID)

		var params SubscriptionParams
		require.NoError(t, gotReq.DecodeParams(&params))
		assert.Equal(t, "t1", params.Data.Topic)
		assert.Equal(t, "hello", params.Data.Message)
	})

	t.Run("Result", func(t *testing.T) {
		resp, err := NewResult(42, "sub-id")
		require.NoError(t, err)
		data, err := Encode(resp)
		require.NoError(t, err)

		gotReq, gotResp, err := Decode(data)
		require.NoError(t, err)
		assert.Nil(t, gotReq)
		require.NotNil(t, gotResp)
		assert.True(t, gotResp.IsSuccess())

		var id string
		require.NoError(t, gotResp.DecodeResult(&id))
		assert.Equal(t, "sub-id", id)
	})

	t.Run("Error", func(t *testing.T) {
		data, err := Encode(NewErrorResponse(7, CodeInvalidParams, "bad topic"))
		require.NoError(t, err)

		_, resp, err := Decode(data)
		require.NoError(t, err)
		assert.False(t, resp.IsSuccess())

		var rpcErr *RPCError
		require.ErrorAs(t, resp.Err(), &rpcErr)
		assert.Equal(t, CodeInvalidParams, rpcErr.Code)
	})

	t.Run("Malformed", func(t *testing.T) {
		cases := map[string]string{
			"not json":    "{",
			"no id":       `{"jsonrpc":"2.0","method":"x"}`,
			"empty reply": `{"jsonrpc":"2.0","id":1}`,
			"bad version": `{"jsonrpc":"1.0","id":1,"method":"x"}`,
		}
		for name, frame := range cases {
			t.Run(name, func(t *testing.T) {
				_, _, err := Decode([]byte(frame))
				assert.ErrorIs(t, err, ErrMalformed)
			})
		}
	})
}

func TestEncodeRejectsInvalidRequest(t *testing.T) {
	_, err := Encode(&Request{ID: 1, JSONRPC: Version})
	assert.Error(t, err)

	_, err = Encode(json.RawMessage(`{}`))
	assert.Error(t, err)
}
