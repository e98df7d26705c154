package v1

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func validateStruct(s interface{}) []FieldError {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []FieldError{{Field: "body", Message: err.Error()}}
	}

	fields := make([]FieldError, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		var message string
		switch fieldError.Tag() {
		case "required":
			message = fieldError.Field() + " is required"
		case "min":
			message = fieldError.Field() + " must be at least " + fieldError.Param()
		case "max":
			message = fieldError.Field() + " must be at most " + fieldError.Param()
		default:
			message = fieldError.Field() + " is invalid"
		}
		fields = append(fields, FieldError{Field: fieldError.Field(), Message: message})
	}
	return fields
}
