package webhook

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// Decode turns a request body into a payload. JSON content types are decoded
// directly. Anything else is read as a form whose "payload" field holds a
// JSON object; the decoded object is merged over the other form fields.
func Decode(contentType string, body []byte) (Payload, error) {
	if strings.TrimSpace(contentType) == "" {
		return nil, badRequest("missing Content-Type")
	}

	if strings.Contains(strings.ToLower(contentType), "json") {
		return decodeObject(body)
	}

	form, err := parseForm(string(body))
	if err != nil {
		return nil, badRequest("%v", err)
	}
	if !form.Has(FieldPayload) {
		return nil, badRequest("missing payload")
	}

	inner, err := decodeObject([]byte(lastValue(form[FieldPayload])))
	if err != nil {
		return nil, err
	}

	merged := make(Payload, len(form)+len(inner))
	for key, values := range form {
		if key == FieldPayload {
			continue
		}
		merged[key] = lastValue(values)
	}
	for key, value := range inner {
		merged[key] = value
	}

	return merged, nil
}

func decodeObject(data []byte) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			return nil, badRequest("payload must be a JSON object")
		case errors.As(err, &syntaxErr):
			return nil, badRequest("syntax error: %v", syntaxErr)
		default:
			return nil, badRequest("%v", err)
		}
	}
	if payload == nil {
		return nil, badRequest("payload must be a JSON object")
	}
	return payload, nil
}

// parseForm decodes an urlencoded body splitting pairs on '&' only, so a
// literal ';' stays part of the value.
func parseForm(body string) (url.Values, error) {
	form := url.Values{}
	for pair := range strings.SplitSeq(body, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, err
		}
		form.Add(key, value)
	}
	return form, nil
}

// lastValue mirrors form parsers where a repeated key keeps its last value.
func lastValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}
