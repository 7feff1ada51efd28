// Package validation checks request payloads with go-playground/validator
// and converts failures into VALIDATION_ERROR responses.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"sccompanion/internal/models"

	"github.com/go-playground/validator/v10"
)

var (
	handleRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	geidRegex   = regexp.MustCompile(`^GEID_[A-Za-z0-9_]+$`)
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the shared validator with the app's custom tags:
// handle, geid and role.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
			return handleRegex.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("geid", func(fl validator.FieldLevel) bool {
			return geidRegex.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return models.Role(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

// Struct validates s and returns a VALIDATION_ERROR listing every bad field.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.NewValidationError(err.Error())
	}

	fields := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, models.FieldError{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return models.NewFieldValidationError(fields)
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "handle":
		return "may only contain letters, numbers, and underscores"
	case "geid":
		return "must look like GEID_<letters, numbers, underscores>"
	case "role":
		return "must be one of user, moderator, admin, super_admin"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		if isString {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if isString {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "is invalid"
	}
}

// ValidateHandle checks a member handle: 3 to 30 letters, digits or underscores.
func ValidateHandle(handle string) error {
	if l := len(handle); l < 3 || l > 30 {
		return errors.New("handle must be 3-30 characters")
	}
	if !handleRegex.MatchString(handle) {
		return errors.New("handle may only contain letters, numbers, and underscores")
	}
	return nil
}

// ValidateGEID checks an RSI GEID value.
func ValidateGEID(geid string) error {
	if !geidRegex.MatchString(geid) {
		return errors.New("invalid GEID format")
	}
	return nil
}
