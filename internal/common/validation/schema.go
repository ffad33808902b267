package validation

import (
	"embed"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	apperrors "portal-service/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names, one per embedded file.
const (
	SchemaPersonalDetails     = "personal-details"
	SchemaProfessionalDetails = "professional-details"
	SchemaSubscriptionDetails = "subscription-details"
	SchemaApplicationStatus   = "application-status"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-\(\)]{7,}$`)
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator holds the compiled request schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles every embedded schema. A broken schema is a startup
// failure.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(entries))}
	for _, entry := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", entry.Name(), err)
		}
		v.schemas[strings.TrimSuffix(entry.Name(), ".json")] = schema
	}
	return v, nil
}

// Names lists the loaded schema names in sorted order.
func (v *Validator) Names() []string {
	names := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks a raw JSON document. Malformed JSON is reported as a
// validation failure, not as an error.
func (v *Validator) Validate(name string, document []byte) (*ValidationResult, error) {
	return v.validate(name, gojsonschema.NewBytesLoader(document))
}

// ValidateValue checks an already decoded Go value.
func (v *Validator) ValidateValue(name string, value interface{}) (*ValidationResult, error) {
	return v.validate(name, gojsonschema.NewGoLoader(value))
}

func (v *Validator) validate(name string, loader gojsonschema.JSONLoader) (*ValidationResult, error) {
	schema, ok := v.schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: "body is not valid JSON",
				Code:    "INVALID_JSON",
			}},
		}, nil
	}
	return fromResult(result), nil
}

func fromResult(result *gojsonschema.Result) *ValidationResult {
	vr := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok {
				if field == "(root)" {
					field = prop
				} else {
					field = field + "." + prop
				}
			}
		}
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return vr
}

// Err converts a failed result into a validation StandardError.
func (vr *ValidationResult) Err() error {
	if vr == nil || vr.Valid {
		return nil
	}
	return apperrors.NewValidationError(strings.Join(vr.GetErrorMessages(), "; ")).
		WithMetadata("fields", vr.fields())
}

func (vr *ValidationResult) fields() []string {
	fields := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		fields = append(fields, err.Field)
	}
	return fields
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a specific field
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") || strings.HasPrefix(err.Field, field+"[") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// RequireKeys reports every key that is missing or empty in data. Used for
// inbound event payloads, which are decoded into maps first.
func RequireKeys(data map[string]interface{}, keys ...string) *ValidationResult {
	vr := &ValidationResult{Valid: true}
	for _, key := range keys {
		val, ok := data[key]
		if ok && val != nil {
			if s, isString := val.(string); !isString || strings.TrimSpace(s) != "" {
				continue
			}
		}
		vr.Valid = false
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   key,
			Message: "required field missing",
			Code:    "REQUIRED_FIELD_MISSING",
		})
	}
	return vr
}

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePhone validates basic phone number format
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}
