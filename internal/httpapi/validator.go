package httpapi

import (
	"github.com/go-playground/validator/v10"

	"geosvc/pkg/apperror"
)

// requestValidator adapts go-playground/validator to echo.Validator so
// handlers can call c.Validate against struct tags.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{v: validator.New()}
}

// Validate implements echo.Validator. Returning an *apperror.Error lets
// HandleError map it straight to CodeBadRequest without a type switch on
// validator.ValidationErrors.
func (rv *requestValidator) Validate(i any) error {
	if err := rv.v.Struct(i); err != nil {
		return apperror.Wrap(err, apperror.CodeBadRequest, "request validation failed")
	}
	return nil
}
