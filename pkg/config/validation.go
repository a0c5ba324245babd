package config

import (
	"reflect"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// Validator is implemented by configuration structs that need checks beyond
// `required` tags, such as cross-field rules. Validate runs after loading.
// A returned *sserr.Error is passed through; any other error is wrapped
// with [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	err := walk(rv, "", func(f field) error {
		if f.tag.Get("required") == "true" && f.value.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, isPlatform := sserr.AsError(err); isPlatform {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: validation failed")
	}
	return nil
}
