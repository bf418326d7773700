package model

import (
	"errors"
	"strings"
	"testing"
)

func TestCredentials_Validate(t *testing.T) {
	limits := DefaultLimits()

	tests := []struct {
		name         string
		creds        Credentials
		requireCrumb bool
		wantFields   []string
	}{
		{
			name:  "valid without crumb",
			creds: Credentials{ClientID: "abc", Session: "def"},
		},
		{
			name:         "crumb required but missing",
			creds:        Credentials{ClientID: "abc", Session: "def"},
			requireCrumb: true,
			wantFields:   []string{"crumb"},
		},
		{
			name:       "empty client id and session",
			creds:      Credentials{ClientID: "  ", Session: ""},
			wantFields: []string{"client_id", "session"},
		},
		{
			name:       "client id too long",
			creds:      Credentials{ClientID: strings.Repeat("a", 129), Session: "s"},
			wantFields: []string{"client_id"},
		},
		{
			name:       "session too long",
			creds:      Credentials{ClientID: "c", Session: strings.Repeat("s", 4097)},
			wantFields: []string{"session"},
		},
		{
			name:       "crumb too long",
			creds:      Credentials{ClientID: "c", Session: "s", Crumb: strings.Repeat("x", 513)},
			wantFields: []string{"crumb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate(limits, tt.requireCrumb)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if len(verrs) != len(tt.wantFields) {
				t.Errorf("got %d errors (%v), want %d", len(verrs), verrs, len(tt.wantFields))
			}
			for _, f := range tt.wantFields {
				if _, ok := verrs[f]; !ok {
					t.Errorf("missing error for %s in %v", f, verrs)
				}
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	err := ValidationErrors{"session": "Session cannot be empty", "client_id": "Client ID cannot be empty"}
	want := "validation failed: client_id: Client ID cannot be empty; session: Session cannot be empty"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidateCode(t *testing.T) {
	if msg := ValidateCode(" \t "); msg != "Code cannot be empty" {
		t.Errorf("ValidateCode(blank) = %q", msg)
	}
	if msg := ValidateCode("ABC123"); msg != "" {
		t.Errorf("ValidateCode(ABC123) = %q, want empty", msg)
	}
}

func TestSummary(t *testing.T) {
	success, failed := Summary([]VerificationResult{{Success: true}, {Success: false}, {Success: true}})
	if success != 2 || failed != 1 {
		t.Errorf("Summary() = %d, %d, want 2, 1", success, failed)
	}
}

func TestRedacted(t *testing.T) {
	if got := Redacted("abcdef", 3); got != "abc..." {
		t.Errorf("Redacted() = %q", got)
	}
	if got := Redacted("ééé", 2); got != "éé..." {
		t.Errorf("Redacted() = %q", got)
	}
	if got := Redacted("ab", 3); got != "ab" {
		t.Errorf("Redacted() = %q", got)
	}
}
