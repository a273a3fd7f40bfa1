package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"invoice-financing/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	gstinRe = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	ifscRe  = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterValidators(v)
	}
}

// RegisterValidators adds the gstin, ifsc and rate tags to v.
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("gstin", validateGSTIN)
	_ = v.RegisterValidation("ifsc", validateIFSC)
	_ = v.RegisterValidation("rate", validateRate)
}

// validateGSTIN accepts a 15-character Indian GST identification number, case-insensitive.
func validateGSTIN(fl validator.FieldLevel) bool {
	return gstinRe.MatchString(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
}

func validateIFSC(fl validator.FieldLevel) bool {
	return ifscRe.MatchString(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
}

// validateRate accepts a decimal percentage in (0, 100] with two decimal places at most.
func validateRate(fl validator.FieldLevel) bool {
	rate, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	if err != nil {
		return false
	}
	return domain.ValidRate(rate)
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string and nested structs) of a struct pointer.
// Fields tagged `sanitize:"-"` are only trimmed.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		clean := sanitize
		if rt.Field(i).Tag.Get("sanitize") == "-" {
			clean = strings.TrimSpace
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(clean(f.String()))
		case reflect.Struct:
			sanitizeFields(f)
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			switch elem.Kind() {
			case reflect.String:
				elem.SetString(clean(elem.String()))
			case reflect.Struct:
				sanitizeFields(elem)
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
