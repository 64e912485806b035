// Package remote holds what every client of the lab gateway shares: the
// response envelope, the error taxonomy and authenticated JSON calls.
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode unwraps a gateway response into v.
//
// Lambda proxy integrations wrap the real payload in an object whose "body"
// field is a JSON-encoded string. When that field is present as a string it
// is decoded a second time; otherwise raw itself is the payload. An envelope
// "statusCode" outside 2xx is a transport failure even if HTTP said 200.
func Decode(op string, raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return decodeErr(op, err)
	}

	if code, ok := envelope["statusCode"]; ok {
		var status int
		if err := json.Unmarshal(code, &status); err == nil && (status < 200 || status > 299) {
			return transport(op, status, nil)
		}
	}

	payload := raw
	if body, ok := envelope["body"]; ok {
		var inner string
		if err := json.Unmarshal(body, &inner); err == nil {
			payload = []byte(inner)
		}
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return decodeErr(op, fmt.Errorf("payload: %w", err))
	}
	return nil
}
