package log

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Log file header values.
const (
	FileMagic   = "relaysub-events"
	FileVersion = 1
)

// ErrNotEventLog is returned when a file does not start with a valid header.
var ErrNotEventLog = errors.New("not a relaysub event log")

// Header is the first record of every event log file.
type Header struct {
	Magic   string    `cbor:"1,keyasint"`
	Version uint8     `cbor:"2,keyasint"`
	Created time.Time `cbor:"3,keyasint"`
}

// Events keep nanosecond timestamps. Decoding tolerates duplicate and unknown
// keys so newer writers stay readable.
var (
	encMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})
	decMode = mustDecMode(cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encoder mode: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor decoder mode: %v", err))
	}
	return m
}

// EncodeEvent encodes a single event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes a single event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := decMode.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns an encoder writing a CBOR sequence to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading a CBOR sequence from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

func newHeader() Header {
	return Header{Magic: FileMagic, Version: FileVersion, Created: time.Now()}
}

// readHeader consumes and validates the header at the start of a log stream.
func readHeader(dec *cbor.Decoder) (Header, error) {
	var h Header
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, fmt.Errorf("%w: empty file", ErrNotEventLog)
		}
		return Header{}, fmt.Errorf("%w: %v", ErrNotEventLog, err)
	}
	if h.Magic != FileMagic {
		return Header{}, ErrNotEventLog
	}
	if h.Version > FileVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrNotEventLog, h.Version)
	}
	return h, nil
}
