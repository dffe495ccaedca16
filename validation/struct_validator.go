package validation

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/scribe/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// tagName picks the name a user would recognise: the json name for request
// bodies, the mapstructure name for config, the snake_cased Go name otherwise.
func tagName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "mapstructure"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return toSnakeCase(fld.Name)
}

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(tagName)
	})
	return validate
}

// Validate validates a struct using `validate:"..."` tags and returns an
// INVALID_INPUT AppError listing every failing field.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Validation("validation failed").WithCause(err)
	}

	v := New()
	for _, e := range verrs {
		v.AddError(fieldPath(e), describe(e))
	}
	return v.Validate()
}

// fieldPath drops the root struct name from the namespace:
// AppConfig.store.redis.addr -> store.redis.addr.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
