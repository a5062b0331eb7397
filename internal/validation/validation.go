// Package validation проверяет входные структуры сервисов и переводит
// ошибки validator в domain.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct проверяет v по тегам `validate` и возвращает первую ошибку поля.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidation(fieldName(fe), reason(fe))
	}
	return fmt.Errorf("validate %T: %w", v, err)
}

// Var проверяет одиночное значение; field попадает в ValidationError как есть.
func Var(field string, value any, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return domain.NewValidation(field, reason(fieldErrs[0]))
	}
	return fmt.Errorf("validate %s: %w", field, err)
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return toSnake(ns)
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "min":
		return "must contain at least " + fe.Param() + " element(s)"
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "unique":
		return "must not contain duplicates"
	default:
		return "failed on " + fe.Tag()
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && (s[i-1] >= 'a' && s[i-1] <= 'z' || s[i-1] >= '0' && s[i-1] <= '9') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
