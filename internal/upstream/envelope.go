package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StatusCode is the upstream envelope's overloaded status field: some
// endpoints report numeric HTTP-like codes, others report a boolean success
// flag. Call sites assert the convention they expect via HTTP() or OK()
// instead of branching ad hoc.
type StatusCode struct {
	num     int
	flag    bool
	isBool  bool
	present bool
}

func (s *StatusCode) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var flag bool
	if err := json.Unmarshal(trimmed, &flag); err == nil {
		s.flag = flag
		s.isBool = true
		s.present = true
		return nil
	}

	var num int
	if err := json.Unmarshal(trimmed, &num); err == nil {
		s.num = num
		s.present = true
		return nil
	}

	return fmt.Errorf("statusCode is neither boolean nor number: %s", trimmed)
}

// HTTP returns the numeric code; ok is false when the endpoint used the
// boolean convention or omitted the field.
func (s StatusCode) HTTP() (code int, ok bool) {
	if !s.present || s.isBool {
		return 0, false
	}
	return s.num, true
}

// OK returns the boolean flag; ok is false when the endpoint used the
// numeric convention or omitted the field.
func (s StatusCode) OK() (flag bool, ok bool) {
	if !s.present || !s.isBool {
		return false, false
	}
	return s.flag, true
}

// Present reports whether the field appeared in the response at all.
func (s StatusCode) Present() bool {
	return s.present
}

// Envelope is the uniform upstream response shape
// {statusCode, result, message}. The raw body is kept so call sites can
// decode endpoints that reply with a bare object instead of the envelope
// (e.g. the reject echo).
type Envelope struct {
	StatusCode StatusCode      `json:"statusCode"`
	Result     json.RawMessage `json:"result"`
	Message    string          `json:"message"`

	raw []byte
}

// Parse decodes an envelope from a raw response body. The body is retained
// for whole-document decoding.
func Parse(data []byte) (*Envelope, error) {
	env := &Envelope{raw: data}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, err
	}
	return env, nil
}

// HasResult reports whether the envelope carries a non-null result.
func (e *Envelope) HasResult() bool {
	trimmed := bytes.TrimSpace(e.Result)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// DecodeResult unmarshals the result field into v.
func (e *Envelope) DecodeResult(v interface{}) error {
	if !e.HasResult() {
		return fmt.Errorf("envelope has no result")
	}
	return json.Unmarshal(e.Result, v)
}

// Decode unmarshals the whole response body into v.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.raw) == 0 {
		return fmt.Errorf("envelope has no body")
	}
	return json.Unmarshal(e.raw, v)
}
