// Package validation checks request structs with go-playground/validator and
// reports failures as CodeValidation domain errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	dErrors "audittrail/pkg/domain-errors"
)

// nameTags are consulted in order for the field name used in messages.
var nameTags = []string{"json", "query"}

// messages maps a failed tag to a format taking the field name and the tag param.
var messages = map[string]string{
	"required": "%s is required",
	"min":      "%s must be at least %s",
	"gte":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"lte":      "%s must be at most %s",
	"gt":       "%s must be greater than %s",
	"oneof":    "%s must be one of [%s]",
	"datetime": "%s must be a date in %s format",
	"notblank": "%s must not be blank",
}

var instance = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", notBlank); err != nil {
		panic(err)
	}
	v.RegisterTagNameFunc(tagName)
	return v
})

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func tagName(f reflect.StructField) string {
	for _, tag := range nameTags {
		if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
			return name
		}
	}
	return ""
}

// Validate checks req against its validate tags. Every failing field is
// reported, in declaration order, separated by "; ".
func Validate(req any) error {
	if err := instance().Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage renders a validator error for API clients.
func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fieldMessage(fe))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		name = fe.StructField()
	}
	field := toSnakeCase(name)
	if format, ok := messages[fe.ActualTag()]; ok {
		if strings.Count(format, "%s") == 2 {
			return fmt.Sprintf(format, field, fe.Param())
		}
		return fmt.Sprintf(format, field)
	}
	if field == "" {
		return "invalid request"
	}
	return field + " is invalid"
}

// toSnakeCase names untagged fields: UserID becomes user_id.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
