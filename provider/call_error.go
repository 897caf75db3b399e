package provider

import (
	"encoding/json"
	"fmt"
)

// CallError is a non-2xx response from the provider. Code carries the OAuth
// error code (or XRPC error name) from the response body when one parsed.
type CallError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *CallError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("provider returned %d", e.StatusCode)
}

func callErrorFromResponse(statusCode int, body []byte) *CallError {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	description := payload.ErrorDescription
	if description == "" {
		description = payload.Message
	}
	return &CallError{
		StatusCode:  statusCode,
		Code:        payload.Error,
		Description: description,
	}
}
