package remote

import (
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

const (
	CodeInvalidCursor = "E_INVALID_CURSOR"
	CodeUnauthorized  = "E_UNAUTHORIZED"
	CodeRateLimited   = "E_RATE_LIMITED"
	CodeInternalError = "E_INTERNAL_ERROR"
	CodeUnknownError  = "E_UNKNOWN_ERR"
)

// APIError is an error reported by a changes API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %d %s - %s", e.Status, e.Code, e.Message)
}

// codeForStatus picks a code when the server sent none.
func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeUnauthorized
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeInternalError
	default:
		return CodeUnknownError
	}
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if resp != nil && resp.Response != nil && resp.IsErrorState() {
		apiErr, ok := resp.ErrorResult().(*APIError)
		if !ok || apiErr == nil || (apiErr.Code == "" && apiErr.Message == "") {
			apiErr = &APIError{Message: resp.String()}
		}
		apiErr.Status = resp.StatusCode
		if apiErr.Code == "" {
			apiErr.Code = codeForStatus(resp.StatusCode)
		}
		return fmt.Errorf("%s: %w", operation, apiErr)
	}

	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}
	return nil
}
