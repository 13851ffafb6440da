package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func NonNegative(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() {
		v[field] = "must_be_non_negative"
	}
}

func RangeDecimal(field string, val, minVal, maxVal decimal.Decimal, v Violations) {
	if val.LessThan(minVal) || val.GreaterThan(maxVal) {
		v[field] = "out_of_range"
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report JSON names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// tagCodes maps validator tags to the codes used in Violations.
var tagCodes = map[string]string{
	"required": "required",
	"email":    "email",
	"min":      "out_of_range",
	"max":      "out_of_range",
	"len":      "out_of_range",
	"gte":      "out_of_range",
	"lte":      "out_of_range",
	"oneof":    "invalid_value",
	"numeric":  "invalid_value",
	"uuid":     "invalid_value",
}

// Struct validates s against its `validate` tags. Field paths use JSON
// names, e.g. "items[0].description".
func Struct(s any) Violations {
	out := Violations{}
	err := validate.Struct(s)
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["_"] = "invalid_value"
		return out
	}
	for _, fe := range verrs {
		ns := fe.Namespace()
		// drop the root struct name
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		code, ok := tagCodes[fe.Tag()]
		if !ok {
			code = "invalid_value"
		}
		out[ns] = code
	}
	return out
}
