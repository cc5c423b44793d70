package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/K-mel/servicemasterfr/internal/orders/domain"
)

const maxErrorBody = 4 << 10

// DoJSON sends req and decodes a JSON response body into out.
// Transport failures, timeouts, 429 and 5xx responses become retryable provider errors;
// other non-2xx responses become permanent ones.
func DoJSON(client *http.Client, req *http.Request, provider domain.PaymentMethod, op string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &domain.ProviderError{Provider: provider, Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.ProviderError{
			Provider:   provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:        errors.New(errorMessage(body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{Provider: provider, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorMessage extracts the provider's message from common error envelopes.
func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if len(body) == 0 {
		return "empty response"
	}
	return string(body)
}
