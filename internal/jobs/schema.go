package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cuongbtq/palantiri/internal/worker/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("httpuri", isHTTPURI); err != nil {
		panic(fmt.Sprintf("jobs: failed to register httpuri validation: %v", err))
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func isHTTPURI(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Decode parses body into the payload type registered for name and validates it.
// Fields that the schema does not know are ignored.
func Decode(name string, body []byte) (any, error) {
	def, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJob, name)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, domain.NewValidationError(name, fmt.Errorf("payload must be a JSON object"))
	}

	payload := def.NewPayload()
	if err := json.Unmarshal(trimmed, payload); err != nil {
		return nil, domain.NewValidationError(name, fmt.Errorf("failed to decode payload: %w", err))
	}

	if err := validate.Struct(payload); err != nil {
		return nil, domain.NewValidationError(name, describe(err))
	}
	return payload, nil
}

// Validate checks that payload has the schema type registered for name and
// satisfies its constraints.
func Validate(name string, payload any) error {
	def, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownJob, name)
	}
	if payload == nil {
		return domain.NewValidationError(name, fmt.Errorf("payload is required"))
	}

	want := reflect.TypeOf(def.NewPayload()).Elem()
	got := reflect.TypeOf(payload)
	if got.Kind() == reflect.Pointer {
		if reflect.ValueOf(payload).IsNil() {
			return domain.NewValidationError(name, fmt.Errorf("payload is required"))
		}
		got = got.Elem()
	}
	if got != want {
		return domain.NewValidationError(name, fmt.Errorf("payload type %s, want %s", got, want))
	}

	if err := validate.Struct(payload); err != nil {
		return domain.NewValidationError(name, describe(err))
	}
	return nil
}

// describe flattens validator errors into a single readable error
func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "httpuri":
			parts = append(parts, field+" must be an http(s) URI")
		default:
			parts = append(parts, fmt.Sprintf("%s failed on %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}
