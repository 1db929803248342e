package errors

import "fmt"

// Error codes
const (
	CodeAPIError   = "API_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeConfig     = "CONFIG_ERROR"
	CodeCache      = "CACHE_ERROR"
	CodeService    = "SERVICE_ERROR"
	CodeUpload     = "UPLOAD_ERROR"
)

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// APIError reports a failed upstream round-trip: network failure or non-2xx status.
type APIError struct {
	*AppError
}

func NewAPIError(message string, statusCode int, context map[string]any) *APIError {
	return &APIError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeAPIError,
			StatusCode: statusCode,
			Context:    context,
		},
	}
}

// WithCause keeps the *APIError type when attaching a cause.
func (e *APIError) WithCause(cause error) *APIError {
	e.Cause = cause
	return e
}

type ValidationError struct {
	*AppError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

// ConfigError is fatal for the call path that needs the missing setting.
type ConfigError struct {
	*AppError
	Setting string
}

func NewConfigError(message, setting string) *ConfigError {
	return &ConfigError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeConfig,
			StatusCode: 500,
			Context: map[string]any{
				"setting": setting,
			},
		},
		Setting: setting,
	}
}

type CacheError struct {
	*AppError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type ServiceError struct {
	*AppError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeService,
			StatusCode: 500,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}

// UploadError describes an unusable inventory file. It never affects the analysis path.
type UploadError struct {
	*AppError
	FileName string
}

func NewUploadError(message string, statusCode int, fileName string, cause error) *UploadError {
	return &UploadError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeUpload,
			StatusCode: statusCode,
			Context: map[string]any{
				"file": fileName,
			},
			Cause: cause,
		},
		FileName: fileName,
	}
}
