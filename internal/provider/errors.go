package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const maxDiagnosticBody = 4 << 10

// APIError is a non-success response from the provider. Body keeps the raw payload
// so operators can see exactly what the provider said.
type APIError struct {
	Operation  string `json:"operation"`
	StatusCode int    `json:"status_code"`
	Type       string `json:"type,omitempty"`
	Code       int    `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
	Body       string `json:"body,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = "empty response"
	}
	if e.Type != "" {
		return fmt.Sprintf("provider %s: %d %s: %s", e.Operation, e.StatusCode, e.Type, msg)
	}
	return fmt.Sprintf("provider %s: %d: %s", e.Operation, e.StatusCode, msg)
}

// Temporary reports whether retrying later could succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500 || e.Code == 4 || e.Code == 17 || e.Code == 32
}

// Graph style: {"error":{"message","type","code","fbtrace_id"}}.
type graphErrorBody struct {
	Error *struct {
		Message   string          `json:"message"`
		Type      string          `json:"type"`
		Code      json.RawMessage `json:"code"`
		FBTraceID string          `json:"fbtrace_id"`
	} `json:"error"`
}

// OAuth endpoint style: {"error_type","code","error_message"}.
type oauthErrorBody struct {
	ErrorType    string          `json:"error_type"`
	Code         json.RawMessage `json:"code"`
	ErrorMessage string          `json:"error_message"`
	Error        string          `json:"error"`
	Description  string          `json:"error_description"`
}

func newAPIError(operation string, status int, body []byte) *APIError {
	if len(body) > maxDiagnosticBody {
		body = body[:maxDiagnosticBody]
	}
	apiErr := &APIError{
		Operation:  operation,
		StatusCode: status,
		Body:       string(bytes.TrimSpace(body)),
	}

	var graph graphErrorBody
	if err := json.Unmarshal(body, &graph); err == nil && graph.Error != nil {
		apiErr.Message = graph.Error.Message
		apiErr.Type = graph.Error.Type
		apiErr.Code = parseCode(graph.Error.Code)
		apiErr.TraceID = graph.Error.FBTraceID
		return apiErr
	}

	var oauth oauthErrorBody
	if err := json.Unmarshal(body, &oauth); err == nil {
		apiErr.Type = firstNonEmpty(oauth.ErrorType, oauth.Error)
		apiErr.Message = firstNonEmpty(oauth.ErrorMessage, oauth.Description)
		apiErr.Code = parseCode(oauth.Code)
	}
	return apiErr
}

func parseCode(raw json.RawMessage) int {
	text := strings.Trim(string(raw), `"`)
	code, _ := strconv.Atoi(text)
	return code
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// IsTimeout reports whether err was caused by the per-call deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
