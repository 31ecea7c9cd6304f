package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var ethiopianMobile = regexp.MustCompile(`^09\d{8}$`)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Message string            `json:"message"`           // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper with the etmobile tag registered.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("etmobile", func(fl validator.FieldLevel) bool {
		return ethiopianMobile.MatchString(fl.Field().String())
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// DecodeJSON reads a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

// DecodeJSONLenient is DecodeJSON for third-party payloads that may carry
// fields we do not model.
func DecodeJSONLenient(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(dst); err != nil {
		return Validation("Invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Validation("Request body must only contain a single JSON object")
	}
	return nil
}

// FieldFailed reports whether err is a validation failure on the named field.
func FieldFailed(err error, field string) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() == field {
			return true
		}
	}
	return false
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	errorResp := ErrorResponse{Message: message}

	var verrs validator.ValidationErrors
	if validationErr != nil && errors.As(validationErr, &verrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range verrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	WriteJSON(w, statusCode, errorResp)
}
