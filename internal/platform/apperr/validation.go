package apperr

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FromValidation converts an ozzo-validation result into a KindValidation
// error carrying a single message. order lists field names by priority so
// the first failing field in it wins; other fields follow alphabetically.
func FromValidation(err error, order ...string) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return &Error{Kind: KindInternal, Message: "validation failed", Err: err}
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return &Error{Kind: KindValidation, Message: err.Error()}
	}

	for _, field := range order {
		if fieldErr, ok := errs[field]; ok && fieldErr != nil {
			return &Error{Kind: KindValidation, Message: message(fieldErr)}
		}
	}
	keys := make([]string, 0, len(errs))
	for k, v := range errs {
		if v != nil {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return &Error{Kind: KindValidation, Message: message(errs[keys[0]])}
}

func message(err error) string {
	var verr validation.Error
	if errors.As(err, &verr) {
		return verr.Message()
	}
	return err.Error()
}
