package server

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type validationDetail struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// newValidator reports fields under their json names.
func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}

func validationResponse(err error) gin.H {
	details := []validationDetail{}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldErr := range validationErrors {
			details = append(details, validationDetail{Field: fieldErr.Namespace(), Rule: fieldErr.Tag()})
		}
	}
	return gin.H{"error": "invalid_request", "details": details}
}
