package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/telephone/internal/store"
)

// validate is a singleton validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks the rules the schema cannot express. All failures are
// reported together as an *InvalidError.
func (g *Garden) Validate() error {
	var errs []ValidationError

	if err := validate.Struct(g); err != nil {
		errs = append(errs, formatValidationError(err)...)
	}

	if len(g.Adapters) == 0 {
		errs = append(errs, ValidationError{
			Field:   "adapter",
			Message: "at least one adapter must be declared",
			Code:    ErrCodeNoAdapters,
		})
	}

	for _, name := range g.AdapterNames() {
		ac := g.Adapters[name]
		field := "adapter." + name
		if store.IsSentinel(name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%q is reserved for a sentinel node", name),
				Code:    ErrCodeReservedName,
			})
		}
		if (ac.Username == "") != (ac.Password == "") {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "username and password must be set together",
				Code:    ErrCodeIncompleteAuth,
			})
		}
		if ve, ok := checkDuration(field+".timeout", ac.Timeout); !ok {
			errs = append(errs, ve)
		}
	}

	if g.Source != nil {
		if ve, ok := checkDuration("source.timeout", g.Source.Timeout); !ok {
			errs = append(errs, ve)
		}
	}
	if ve, ok := checkDuration("hop_timeout", g.HopTimeout); !ok {
		errs = append(errs, ve)
	}

	if len(errs) > 0 {
		return &InvalidError{Errors: errs}
	}
	return nil
}

// AdapterNames returns the declared adapter names in sorted order.
func (g *Garden) AdapterNames() []string {
	names := make([]string, 0, len(g.Adapters))
	for name := range g.Adapters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func checkDuration(field, s string) (ValidationError, bool) {
	if s == "" {
		return ValidationError{}, true
	}
	d, err := time.ParseDuration(s)
	if err == nil && d > 0 {
		return ValidationError{}, true
	}
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%q is not a positive duration", s),
		Code:    ErrCodeBadDuration,
	}, false
}

// formatValidationError converts validator errors into ValidationErrors.
func formatValidationError(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: "garden", Message: err.Error(), Code: ErrCodeInvalidField}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Garden.adapter[alpha].url"; drop the type name.
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		out = append(out, ValidationError{
			Field:   field,
			Message: ruleMessage(fe),
			Code:    ErrCodeInvalidField,
		})
	}
	return out
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
