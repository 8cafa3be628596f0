package rankapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultHeaders is the browser-like header template sent with every rank request.
// Credentials are layered on top by the request builder.
var DefaultHeaders = map[string]string{
	"accept":          "application/json, text/plain, */*",
	"accept-language": "zh-CN,zh;q=0.9",
	"priority":        "u=1, i",
	"referer":         "https://www.gurufocus.com/stocks/region/asia/china",
	"sec-fetch-dest":  "empty",
	"sec-fetch-mode":  "cors",
	"sec-fetch-site":  "same-origin",
}

// ErrEmptyPayload is returned for a 200 response whose body is an empty JSON object.
var ErrEmptyPayload = errors.New("empty payload")

// Payload is a decoded rank response. Raw keeps the body exactly as received
// so persisted documents carry every field, not just the ones read here.
type Payload struct {
	Raw json.RawMessage

	// Rank is nil when the response has no rank field or it is null
	Rank *float64
}

// HasRank reports whether the response carried a numeric rank.
func (p *Payload) HasRank() bool {
	return p != nil && p.Rank != nil
}

// Decode parses a rank response body. The body must be a non-empty JSON object;
// a rank field, when present and not null, must be a JSON number.
func Decode(body []byte) (*Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode rank response: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("failed to decode rank response: body is null")
	}
	if len(fields) == 0 {
		return nil, ErrEmptyPayload
	}

	payload := &Payload{Raw: json.RawMessage(bytes.TrimSpace(body))}

	raw, ok := fields["rank"]
	if !ok || string(raw) == "null" {
		return payload, nil
	}

	var rank float64
	if err := json.Unmarshal(raw, &rank); err != nil {
		return nil, fmt.Errorf("rank is not a number: %s", raw)
	}
	payload.Rank = &rank

	return payload, nil
}
