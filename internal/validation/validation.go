// Package validation checks form input before anything is sent over the
// network and turns failures into field-scoped apperr validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/five82/shelf/internal/apperr"
	"github.com/five82/shelf/internal/catalog"
)

var (
	personName = regexp.MustCompile(`^[A-Za-z ]+$`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasNumber  = regexp.MustCompile(`[0-9]`)
	hasSpecial = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?~` + "`" + `]`)
)

// Validator wraps a configured validator.Validate.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with shelf's custom rules registered: genre,
// person_name and password_strength. Fields are reported by their `form`
// tag.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	_ = v.RegisterValidation("genre", func(fl validator.FieldLevel) bool {
		return catalog.IsGenre(fl.Field().String())
	})
	_ = v.RegisterValidation("person_name", func(fl validator.FieldLevel) bool {
		return personName.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password_strength", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return len(p) >= 8 && hasUpper.MatchString(p) && hasLower.MatchString(p) &&
			hasNumber.MatchString(p) && hasSpecial.MatchString(p)
	})
	return &Validator{v: v}
}

// Check validates s and merges in extra field messages computed by the
// caller. It returns nil or an apperr validation error for op.
func (val *Validator) Check(op string, s any, extra map[string]string) error {
	fields := make(map[string]string)
	if err := val.v.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate %s: %w", op, err)
		}
		for _, fe := range verrs {
			if _, seen := fields[fe.Field()]; !seen {
				fields[fe.Field()] = message(fe)
			}
		}
	}
	for k, msg := range extra {
		if _, seen := fields[k]; !seen && msg != "" {
			fields[k] = msg
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(op, fields)
}

func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	numeric := fe.Kind() == reflect.Float64 || fe.Kind() == reflect.Int
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		if numeric {
			return fmt.Sprintf("%s must be at least %s", field, param)
		}
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		if numeric {
			return fmt.Sprintf("%s must be at most %s", field, param)
		}
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	case "genre":
		return fmt.Sprintf("%s must be one of the listed genres", field)
	case "person_name":
		return fmt.Sprintf("%s may contain only letters and spaces", field)
	case "password_strength":
		return fmt.Sprintf("%s must be at least 8 characters with uppercase, lowercase, number, and special character", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
