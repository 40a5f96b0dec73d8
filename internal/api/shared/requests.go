package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxJSONBodyBytes caps JSON request bodies read by DecodeJSON.
const MaxJSONBodyBytes = 1 << 20

// ErrTrailingData is returned when a JSON body holds more than one value.
var ErrTrailingData = errors.New("request body must contain a single JSON value")

var validate = newValidator()

// newValidator reports validation failures under their JSON field names so
// clients see the keys they sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
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

// DecodeJSON decodes a single JSON value from the request body into v.
// Bodies larger than MaxJSONBodyBytes are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return ErrTrailingData
	}
	return nil
}

// ValidateRequest runs v's own Validate method when it has one, and the
// struct tag rules otherwise.
func ValidateRequest(v any) error {
	if sv, ok := v.(interface{ Validate() error }); ok {
		return sv.Validate()
	}
	return validate.Struct(v)
}

// ValidateVar validates a single value against a tag such as "required,uuid".
func ValidateVar(value any, tag string) error {
	return validate.Var(value, tag)
}
