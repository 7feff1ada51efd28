package validation

import (
	"strings"
	"testing"

	"sccompanion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Handle   string   `json:"handle" validate:"required,min=3,max=30,handle"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8"`
	Avatar   string   `json:"avatar" validate:"omitempty,url"`
	GEID     string   `json:"geid" validate:"omitempty,geid"`
	Role     string   `json:"role" validate:"omitempty,role"`
	Media    []string `json:"mediaUrls" validate:"omitempty,max=4,dive,url"`
	Amount   int64    `json:"amount" validate:"gte=0"`
	Action   string   `json:"action" validate:"omitempty,oneof=accept decline"`
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)

	fields, ok := appErr.Details.([]models.FieldError)
	require.True(t, ok)
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Field] = f.Message
	}
	return out
}

func TestStruct_Valid(t *testing.T) {
	t.Parallel()
	err := Struct(signup{
		Handle:   "space_cowboy",
		Email:    "cowboy@example.com",
		Password: "hunter2hunter2",
		Avatar:   "https://cdn.example.com/a.png",
		GEID:     "GEID_abc_123",
		Role:     "moderator",
		Media:    []string{"https://example.com/1.png"},
		Action:   "accept",
	})
	assert.NoError(t, err)
}

func TestStruct_FieldErrors(t *testing.T) {
	t.Parallel()
	errs := fieldErrors(t, Struct(signup{
		Handle:   "a!",
		Email:    "not-an-email",
		Password: "short",
		Avatar:   "nope",
		GEID:     "12345",
		Role:     "emperor",
		Media:    []string{"1", "2", "3", "4", "5"},
		Amount:   -1,
		Action:   "maybe",
	}))

	assert.Equal(t, "must be at least 3 characters", errs["handle"])
	assert.Equal(t, "must be a valid email address", errs["email"])
	assert.Equal(t, "must be at least 8 characters", errs["password"])
	assert.Equal(t, "must be a valid URL", errs["avatar"])
	assert.Contains(t, errs, "geid")
	assert.Contains(t, errs, "role")
	assert.Equal(t, "must contain at most 4 items", errs["mediaUrls"])
	assert.Equal(t, "must be at least 0", errs["amount"])
	assert.Equal(t, "must be one of accept, decline", errs["action"])
}

func TestStruct_DiveReportsIndex(t *testing.T) {
	t.Parallel()
	errs := fieldErrors(t, Struct(signup{
		Handle:   "valid_name",
		Email:    "a@b.co",
		Password: "longenough",
		Media:    []string{"https://ok.example.com", "bad"},
	}))
	assert.Equal(t, "must be a valid URL", errs["mediaUrls[1]"])
}

func TestValidateHandle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handle  string
		wantErr bool
	}{
		{"Valid", "alice_01", false},
		{"Exactly Min Length", "abc", false},
		{"Exactly Max Length", strings.Repeat("a", 30), false},
		{"Too Short", "ab", true},
		{"Too Long", strings.Repeat("a", 31), true},
		{"Hyphen", "alice-01", true},
		{"Space", "alice 01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHandle(tt.handle)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateGEID(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateGEID("GEID_Abc_123"))
	assert.Error(t, ValidateGEID("GEID_"))
	assert.Error(t, ValidateGEID("geid_abc"))
	assert.Error(t, ValidateGEID("GEID_abc-def"))
}
