// Package validator wraps go-playground/validator for declarative struct
// validation with uniform error messages. Besides the built-in tags it knows
// `solana_address`, which accepts base58-encoded 32-byte public keys.
package validator

import (
	"errors"
	"fmt"

	"github.com/gabapcia/mintwatch/internal/pkg/types"

	gvalidator "github.com/go-playground/validator/v10"
)

// ErrValidationFailed heads the joined error returned for any failed validation.
var ErrValidationFailed = errors.New("struct validation failed")

var validator *gvalidator.Validate

// errStringFormat describes a single failed field.
//
// Example: "'Mint': value 'abc' does not meet the requirements for the 'solana_address' validation"
const errStringFormat = "'%s': value '%v' does not meet the requirements for the '%s' validation"

func init() {
	validator = gvalidator.New(gvalidator.WithRequiredStructEnabled())

	_ = validator.RegisterValidation("solana_address", func(fl gvalidator.FieldLevel) bool {
		return types.IsValidAddress(fl.Field().String())
	})
}

func formatError(err error) error {
	var validationErrors gvalidator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	errs := []error{ErrValidationFailed}
	for _, validationErr := range validationErrors {
		errs = append(errs, fmt.Errorf(errStringFormat,
			validationErr.Namespace(),
			validationErr.Value(),
			validationErr.Tag(),
		))
	}

	return errors.Join(errs...)
}

// Validate checks v against its `validate` tags. Failures are reported as
// ErrValidationFailed joined with one message per field.
//
//	if err := validator.Validate(cfg); errors.Is(err, validator.ErrValidationFailed) {
//	    // reject configuration
//	}
func Validate(v any) error {
	if err := validator.Struct(v); err != nil {
		return formatError(err)
	}

	return nil
}

// Var checks a single value against tag, for example
// validator.Var(addr, "solana_address").
func Var(v any, tag string) error {
	if err := validator.Var(v, tag); err != nil {
		return formatError(err)
	}

	return nil
}
