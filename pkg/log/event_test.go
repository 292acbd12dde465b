package log

import (
	"bytes"
	"testing"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DirectionIn", DirectionIn.String(), "IN"},
		{"DirectionOut", DirectionOut.String(), "OUT"},
		{"DirectionLocal", DirectionLocal.String(), "LOCAL"},
		{"DirectionUnknown", Direction(99).String(), "UNKNOWN"},
		{"LayerLink", LayerLink.String(), "LINK"},
		{"LayerRPC", LayerRPC.String(), "RPC"},
		{"LayerManager", LayerManager.String(), "MANAGER"},
		{"LayerUnknown", Layer(99).String(), "UNKNOWN"},
		{"CategoryMessage", CategoryMessage.String(), "MESSAGE"},
		{"CategoryControl", CategoryControl.String(), "CONTROL"},
		{"CategoryState", CategoryState.String(), "STATE"},
		{"CategoryError", CategoryError.String(), "ERROR"},
		{"CategorySubscription", CategorySubscription.String(), "SUBSCRIPTION"},
		{"CategoryUnknown", Category(99).String(), "UNKNOWN"},
		{"MessageTypeRequest", MessageTypeRequest.String(), "REQUEST"},
		{"MessageTypeResponse", MessageTypeResponse.String(), "RESPONSE"},
		{"MessageTypeNotification", MessageTypeNotification.String(), "NOTIFICATION"},
		{"MessageTypeUnknown", MessageType(99).String(), "UNKNOWN"},
		{"StateEntityLink", StateEntityLink.String(), "LINK"},
		{"StateEntityManager", StateEntityManager.String(), "MANAGER"},
		{"StateEntityUnknown", StateEntity(99).String(), "UNKNOWN"},
		{"ControlMsgPing", ControlMsgPing.String(), "PING"},
		{"ControlMsgPong", ControlMsgPong.String(), "PONG"},
		{"ControlMsgClose", ControlMsgClose.String(), "CLOSE"},
		{"ControlMsgUnknown", ControlMsgType(99).String(), "UNKNOWN"},
		{"ActionCreated", ActionCreated.String(), "CREATED"},
		{"ActionDeleted", ActionDeleted.String(), "DELETED"},
		{"ActionPending", ActionPending.String(), "PENDING"},
		{"ActionCached", ActionCached.String(), "CACHED"},
		{"ActionResubscribed", ActionResubscribed.String(), "RESUBSCRIBED"},
		{"ActionStalled", ActionStalled.String(), "STALLED"},
		{"ActionRestored", ActionRestored.String(), "RESTORED"},
		{"ActionUnknown", SubscriptionAction(99).String(), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewFrameEvent(t *testing.T) {
	t.Run("Small", func(t *testing.T) {
		data := []byte("hello")
		fe := NewFrameEvent(data)
		if fe.Size != 5 || fe.Truncated || !bytes.Equal(fe.Data, data) {
			t.Errorf("unexpected frame event: %+v", fe)
		}
		data[0] = 'j'
		if fe.Data[0] != 'h' {
			t.Error("frame data aliases the input slice")
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		data := bytes.Repeat([]byte{'x'}, MaxFrameData+10)
		fe := NewFrameEvent(data)
		if fe.Size != MaxFrameData+10 {
			t.Errorf("Size: got %d, want %d", fe.Size, MaxFrameData+10)
		}
		if !fe.Truncated || len(fe.Data) != MaxFrameData {
			t.Errorf("expected truncation to %d bytes, got %d (truncated=%v)", MaxFrameData, len(fe.Data), fe.Truncated)
		}
	})
}
