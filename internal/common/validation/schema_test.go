package validation

import (
	"errors"
	"testing"

	apperrors "portal-service/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestNewValidator_LoadsEmbeddedSchemas(t *testing.T) {
	v := newValidator(t)
	assert.Equal(t, []string{
		SchemaApplicationStatus,
		SchemaPersonalDetails,
		SchemaProfessionalDetails,
		SchemaSubscriptionDetails,
	}, v.Names())
}

func TestValidate_PersonalDetails(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name      string
		body      string
		valid     bool
		errFields []string
	}{
		{
			name:  "valid",
			body:  `{"personalInfo":{"surname":"Byrne","forename":"Aoife","dateOfBirth":"14/02/1990"},"contactInfo":{"personalEmail":"aoife@example.ie"}}`,
			valid: true,
		},
		{
			name:  "empty email allowed",
			body:  `{"personalInfo":{"surname":"Byrne","forename":"Aoife"},"contactInfo":{"workEmail":""}}`,
			valid: true,
		},
		{
			name:      "missing sections",
			body:      `{}`,
			errFields: []string{"personalInfo", "contactInfo"},
		},
		{
			name:      "missing surname",
			body:      `{"personalInfo":{"forename":"Aoife"},"contactInfo":{}}`,
			errFields: []string{"personalInfo.surname"},
		},
		{
			name:      "bad date of birth",
			body:      `{"personalInfo":{"surname":"B","forename":"A","dateOfBirth":"1990-02-14"},"contactInfo":{}}`,
			errFields: []string{"personalInfo.dateOfBirth"},
		},
		{
			name:      "bad email",
			body:      `{"personalInfo":{"surname":"B","forename":"A"},"contactInfo":{"personalEmail":"nope"}}`,
			errFields: []string{"contactInfo.personalEmail"},
		},
		{
			name:      "not json",
			body:      `{"personalInfo":`,
			errFields: []string{"(root)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Validate(SchemaPersonalDetails, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid, result.GetErrorMessages())
			for _, field := range tt.errFields {
				assert.True(t, result.HasErrors(field), "expected error on %s, got %v", field, result.GetErrorMessages())
			}
		})
	}
}

func TestValidate_SubscriptionAcceptsAnyFrequency(t *testing.T) {
	v := newValidator(t)

	result, err := v.Validate(SchemaSubscriptionDetails,
		[]byte(`{"subscriptionDetails":{"paymentType":"Card Payment","paymentFrequency":"Weekly"}}`))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	result, err = v.Validate(SchemaSubscriptionDetails, []byte(`{"subscriptionDetails":{}}`))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors("subscriptionDetails.paymentType"))
}

func TestValidate_ApplicationStatus(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name  string
		value map[string]interface{}
		valid bool
	}{
		{"approve", map[string]interface{}{"status": "approved"}, true},
		{"reject with reason", map[string]interface{}{"status": "rejected", "reason": "incomplete"}, true},
		{"reject without reason", map[string]interface{}{"status": "rejected"}, false},
		{"submitted not allowed", map[string]interface{}{"status": "submitted"}, false},
		{"missing", map[string]interface{}{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.ValidateValue(SchemaApplicationStatus, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid, result.GetErrorMessages())
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v := newValidator(t)
	_, err := v.Validate("nope", []byte(`{}`))
	assert.Error(t, err)
}

func TestValidationResult_Err(t *testing.T) {
	assert.NoError(t, (&ValidationResult{Valid: true}).Err())

	vr := &ValidationResult{Errors: []ValidationError{{Field: "a", Message: "bad"}}}
	err := vr.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, []string{"a"}, stdErr.Metadata["fields"])
}

func TestGetErrorsForField(t *testing.T) {
	vr := &ValidationResult{Errors: []ValidationError{
		{Field: "contactInfo.workEmail"},
		{Field: "contactInfo"},
		{Field: "personalInfo.surname"},
	}}
	assert.Len(t, vr.GetErrorsForField("contactInfo"), 2)
	assert.Len(t, vr.GetErrorsForField("personalInfo"), 1)
}

func TestRequireKeys(t *testing.T) {
	vr := RequireKeys(map[string]interface{}{
		"userId":        "u-1",
		"applicationId": "  ",
		"amount":        0.0,
	}, "userId", "applicationId", "amount", "branch")

	assert.False(t, vr.Valid)
	assert.False(t, vr.HasErrors("userId"))
	assert.True(t, vr.HasErrors("applicationId"))
	assert.False(t, vr.HasErrors("amount"))
	assert.True(t, vr.HasErrors("branch"))
}

func TestValidateEmailAndPhone(t *testing.T) {
	assert.True(t, ValidateEmail("a.b@example.ie"))
	assert.False(t, ValidateEmail("a.b@"))
	assert.True(t, ValidatePhone("+353 87 123 4567"))
	assert.False(t, ValidatePhone("12"))
}
