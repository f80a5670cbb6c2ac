package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	s "proofdrop/pkg/string"
)

var defaultValidator = newValidator()

var customRules = map[string]validator.Func{
	"notblank": func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	},
	"uint256": func(fl validator.FieldLevel) bool {
		_, err := domain.ParseAmount(fl.Field().String())
		return err == nil
	},
	"bytes32": func(fl validator.FieldLevel) bool {
		_, err := domain.ParseBytes32(fl.Field().String())
		return err == nil
	},
}

func newValidator() *validator.Validate {
	return mustRegister(validator.New(validator.WithRequiredStructEnabled()), customRules)
}

// mustRegister panics if the validator rejects a rule.
func mustRegister(v *validator.Validate, rules map[string]validator.Func) *validator.Validate {
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("validation: register %q: %v", tag, err))
		}
	}
	return v
}

// Validate validates a struct using the default validator and returns a domain error
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage converts a validator error into a human-readable message
func ErrorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request body"
	}

	fe := validationErrs[0]
	fieldName := fe.Field()
	if fieldName == "" {
		fieldName = fe.StructField()
	}
	field := s.ToSnakeCase(fieldName)

	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "eth_addr":
		return fmt.Sprintf("%s must be a 0x-prefixed 20-byte address", field)
	case "uint256":
		return fmt.Sprintf("%s must be a base-10 unsigned 256-bit integer", field)
	case "bytes32":
		return fmt.Sprintf("%s must be 0x-prefixed 32-byte hex", field)
	case "hexadecimal":
		return fmt.Sprintf("%s must be hex encoded", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	default:
		if field == "" {
			return "invalid request body"
		}
		return fmt.Sprintf("%s is invalid", field)
	}
}
