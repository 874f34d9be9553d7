// Package response holds the JSON error envelope shared by handlers and middleware.
package response

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const StatusError = "error"

// Error codes that are not URL or payment rejection reasons.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeRateLimited         = "RATE_LIMITED"
	CodeGenerationExhausted = "CODE_GENERATION_EXHAUSTED"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeInternal            = "INTERNAL"
)

var (
	EmptyRequestBodyResponse = Error(CodeInvalidRequest, "Request body is empty. Please provide necessary data.")

	InvalidRequestBodyResponse = Error(CodeInvalidRequest, "Request body is not valid JSON.")

	NotFoundResponse = Error(CodeNotFound, "The requested resource was not found.")

	RateLimitedResponse = Error(CodeRateLimited, "Too many requests. Please try again later.")

	StorageUnavailableResponse = Error(CodeStorageUnavailable, "Storage is temporarily unavailable. Please try again later.")

	ServerErrorResponse = Error(CodeInternal, "An internal server error occurred. Please try again later.")
)

type Response struct {
	Status  string            `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []validationError `json:"details,omitempty"`
}

func Error(code, msg string) Response {
	return Response{
		Status:  StatusError,
		Code:    code,
		Message: msg,
	}
}

// ValidationErrorResponse describes failed struct validation field by field.
func ValidationErrorResponse(err error) Response {
	resp := Error(CodeInvalidRequest, "Request body failed validation.")
	resp.Details = getValidationErrors(err)

	return resp
}

type validationError struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Issue string `json:"issue"`
}

func issueForTag(tag string) string {
	switch tag {
	case "required":
		return "This field is required."
	case "url":
		return "Invalid url."
	case "max":
		return "Value is too long."
	default:
		return "Invalid value."
	}
}

func getValidationErrors(err error) []validationError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}

	validationErrs := make([]validationError, 0, len(errs))
	for _, e := range errs {
		validationErrs = append(validationErrs, validationError{
			Field: e.Field(),
			Value: fmt.Sprint(e.Value()),
			Issue: issueForTag(e.Tag()),
		})
	}

	return validationErrs
}
