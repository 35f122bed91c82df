// Package providers holds the built-in provider adapters:
// one subpackage per remote search/research service, each following the
// shape of this project's original AI-completion adapters
// (internal/provider/anthropic, internal/provider/openai,
// internal/provider/azure) — private wire types, a registry factory, and
// an HTTP-error classifier — generalized from chat completions to the
// search/research Provider contract.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sanix-darker/librarium/internal/provider"
)

// ClassifyStatus maps an HTTP status code shared across most REST-style
// search APIs to a normalized provider.Error. Adapters with a
// provider-specific error body (e.g. a distinct "context too long" code)
// wrap this with their own classifier rather than duplicating the
// boilerplate status-to-code table.
func ClassifyStatus(providerID string, status int, message string) *provider.Error {
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}

	e := &provider.Error{
		Provider:   providerID,
		Message:    message,
		StatusCode: status,
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = provider.ErrCodeAuthentication
	case status == http.StatusTooManyRequests:
		e.Code = provider.ErrCodeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Code = provider.ErrCodeTimeout
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Code = provider.ErrCodeInvalidRequest
	case status >= 500:
		e.Code = provider.ErrCodeProviderUnavailable
	default:
		e.Code = provider.ErrCodeUnknown
	}
	return e
}

// WordCount is a shared helper for populating Report.WordCount from a
// Result's content.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// Remarshal re-encodes a value already decoded into interface{} (as
// httpclient.Response.Data is) and decodes it into dst. Every adapter's
// response body arrives pre-parsed as map[string]interface{}/[]interface{}
// rather than raw bytes, so this is the one conversion point back to a
// typed struct instead of each adapter hand-rolling type assertions.
func Remarshal(src interface{}, dst interface{}) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
