package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

// ValidationErrors collects multiple validation failures.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	parts := make([]string, len(v))
	for i, err := range v {
		if err.Param != "" {
			parts[i] = err.Field + " failed on " + err.Tag + "=" + err.Param
		} else {
			parts[i] = err.Field + " failed on " + err.Tag
		}
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates s against its `validate` tags. Field names follow the json tags.
func ValidateStruct(s any) error {
	return convert(getValidator().Struct(s), "")
}

// ValidateVar validates a single value against tag, e.g. ValidateVar(email, "required,email").
func ValidateVar(value any, tag string) error {
	return convert(getValidator().Var(value, tag), "value")
}

func convert(err error, field string) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	failures := make(ValidationErrors, 0, len(ve))
	for _, fe := range ve {
		name := field
		if name == "" {
			name = fe.Field()
		}
		failures = append(failures, ValidationError{Field: name, Tag: fe.Tag(), Param: fe.Param()})
	}
	return failures
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("json")
			if name == "" {
				return fld.Name
			}

			comma := strings.Index(name, ",")
			if comma != -1 {
				name = name[:comma]
			}

			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("timezone", validTimezone)
	})
	return validate
}

// validTimezone accepts IANA zone identifiers. "Local" is rejected because it depends on the host.
func validTimezone(fl validator.FieldLevel) bool {
	tz := strings.TrimSpace(fl.Field().String())
	if tz == "" || strings.EqualFold(tz, "local") {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
