package source

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes source API failures.
type ErrorCode string

const (
	// ErrCodeAuthOrParameter means the service answered but refused the
	// request: bad credentials, a locked account, a missing parameter or an
	// unknown file name. Retrying will not help.
	ErrCodeAuthOrParameter ErrorCode = "AUTH_OR_PARAMETER"

	// ErrCodeHTTPStatus means the service returned a non-2xx status.
	ErrCodeHTTPStatus ErrorCode = "HTTP_STATUS"

	// ErrCodeMalformed means the response could not be decoded.
	ErrCodeMalformed ErrorCode = "MALFORMED_RESPONSE"
)

// knownRefusals are phrases the service embeds in an otherwise successful
// envelope when it rejects a request.
var knownRefusals = []string{
	"Account is locked",
	"Invalid username or password",
	"Error Message: Value cannot be null.\nParameter name: clientId",
}

// APIError reports a failed source API call.
type APIError struct {
	Code     ErrorCode
	Endpoint string
	Message  string
	Err      error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Code, e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Code, e.Endpoint, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAuthOrParameter reports whether err is a refusal by the service.
func IsAuthOrParameter(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeAuthOrParameter
	}
	return false
}
