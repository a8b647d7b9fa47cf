package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// maxBodyBytes caps tool request bodies.
const maxBodyBytes = 64 << 10

// CallInfo is the telephony context the voice platform attaches to each tool call.
type CallInfo struct {
	// FromNumber is the caller (the customer).
	FromNumber string `json:"from_number"`
	// ToNumber is the number dialled (the salon).
	ToNumber string `json:"to_number"`
}

// decodeEnvelope reads {"call": {...}, "args": {...}} into call and args.
// When "args" is missing the remaining top-level fields are the args.
// Unknown fields are rejected either way.
func decodeEnvelope(r *http.Request, args any) (CallInfo, error) {
	var call CallInfo
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return call, fmt.Errorf("read body: %w", err)
	}
	if len(raw) > maxBodyBytes {
		return call, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return call, fmt.Errorf("body must be a JSON object: %w", err)
	}
	if c, ok := top["call"]; ok && !isNull(c) {
		if err := strictDecode(c, &call); err != nil {
			return call, fmt.Errorf("call: %w", err)
		}
	}
	delete(top, "call")

	payload, hasArgs := top["args"]
	if hasArgs {
		delete(top, "args")
		if len(top) > 0 {
			return call, fmt.Errorf("unexpected field %q next to args", firstKey(top))
		}
		if isNull(payload) {
			payload = []byte("{}")
		}
	} else {
		payload, err = json.Marshal(top)
		if err != nil {
			return call, err
		}
	}
	if err := strictDecode(payload, args); err != nil {
		return call, fmt.Errorf("args: %w", err)
	}
	return call, nil
}

func strictDecode(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func firstKey(m map[string]json.RawMessage) string {
	first := ""
	for k := range m {
		if first == "" || k < first {
			first = k
		}
	}
	return first
}

// StringList accepts either a single string or an array of strings.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*s = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if strings.TrimSpace(one) == "" {
			*s = nil
		} else {
			*s = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings")
	}
	*s = many
	return nil
}

// FlexInt accepts a JSON number or a numeric string.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*f = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected a number")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected a number, got %q", s)
	}
	*f = FlexInt(n)
	return nil
}
