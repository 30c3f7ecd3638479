package boundary

import (
	"encoding/json"
	"errors"
)

// Envelope is the stable `{success, data, error}` wire shape every
// boundary operation returns. On success, Data carries the JSON payload;
// on failure, Error carries a UTF-8 message and ErrorKind one of the
// fixed tags in errors.go.
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// EncodeSuccess marshals v as the envelope's data payload.
func EncodeSuccess(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Success: true, Data: data})
}

// EncodeFailure marshals err into a failure envelope, extracting its Kind
// when err is (or wraps) a *Error; otherwise it is reported as Internal.
func EncodeFailure(err error) []byte {
	kind := string(KindInternal)
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		kind = k.Kind()
	}
	b, marshalErr := json.Marshal(Envelope{Success: false, Error: err.Error(), ErrorKind: kind})
	if marshalErr != nil {
		// Marshaling a plain string envelope cannot fail in practice; fall
		// back to a hand-built payload if it somehow does.
		return []byte(`{"success":false,"error":"internal error","error_kind":"Internal"}`)
	}
	return b
}

// Decode parses an Envelope's data field into dst.
func Decode(envelope []byte, dst any) error {
	var e Envelope
	if err := json.Unmarshal(envelope, &e); err != nil {
		return err
	}
	if !e.Success {
		return New(Kind(e.ErrorKind), e.Error)
	}
	return json.Unmarshal(e.Data, dst)
}
