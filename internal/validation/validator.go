// Package validation wraps go-playground/validator with a shared instance and
// field errors keyed by JSON names.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule on one field.
type FieldError struct {
	Field string `json:"field"`           // JSON name of the field
	Tag   string `json:"tag"`             // failed tag, e.g. "required" or "max"
	Param string `json:"param,omitempty"` // tag parameter, e.g. "5" for max=5
}

// Get returns the shared validator. Field names reported in errors come from
// the json tag when present.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates s and returns the failed fields in declaration order, or
// nil when s is valid. Errors other than field failures are returned as-is.
func Struct(s interface{}) ([]FieldError, error) {
	err := Get().Struct(s)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()})
	}
	return out, nil
}
