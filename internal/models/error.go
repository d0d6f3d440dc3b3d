package models

// BaseError is the base type for API errors
type BaseError struct {
	Error string `json:"error" example:"something bad"`
	Code  string `json:"code,omitempty" example:"unauthorized"`
}

// NewApiError returns a new response body carrying an error code
func NewApiError(code string, message string) BaseError {
	return BaseError{
		Error: message,
		Code:  code,
	}
}

// InternalServerError is returned in the body of an HTTP 500
type InternalServerError struct {
	BaseError
	TraceId string `json:"trace_id,omitempty" example:"b2e5a1ac0ee4b35a1cfa7ab4a0bce5c4"`
}

// ValidationError is returned in the body of an HTTP 400 for requests that
// are refused before reaching a command.
type ValidationError struct {
	BaseError
	Field string `json:"field,omitempty"`
}

func NewBadPayloadError() ValidationError {
	return ValidationError{
		BaseError: BaseError{
			Error: "request json is invalid",
			Code:  "invalid_payload",
		},
	}
}

func NewFieldValidationError(field string, reason string) ValidationError {
	return ValidationError{
		Field: field,
		BaseError: BaseError{
			Error: reason,
			Code:  "invalid_field",
		},
	}
}

// NotFoundError is returned in the body of an HTTP 404
type NotFoundError struct {
	BaseError
	Resource string `json:"resource,omitempty"`
}

func NewNotFoundError(resource string) NotFoundError {
	return NotFoundError{
		Resource: resource,
		BaseError: BaseError{
			Error: "not found",
			Code:  resource + "_not_found",
		},
	}
}

// NotAllowedError is returned in the body of an HTTP 405 when the
// operation is switched off by a feature flag.
type NotAllowedError struct {
	BaseError
	Reason string `json:"reason,omitempty" example:"email-invites support is disabled"`
}

func NewNotAllowedError(reason string) NotAllowedError {
	return NotAllowedError{
		Reason: reason,
		BaseError: BaseError{
			Error: "operation not allowed",
			Code:  "feature_disabled",
		},
	}
}
