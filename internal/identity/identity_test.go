package identity

import (
	"errors"
	"testing"
)

func TestFormatParseRoundTrip(t *testing.T) {
	raw := Format(RoleLearner, 42)
	if raw != "STUDENT-42" {
		t.Fatalf("Format() = %q, want %q", raw, "STUDENT-42")
	}
	role, id, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if role != RoleLearner || id != 42 {
		t.Fatalf("Parse() = (%q, %d), want (STUDENT, 42)", role, id)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "STUDENT", "STUDENT-", "-5", "ADMIN-5", "STUDENT-abc", "PROF-0", "STUDENT--3"} {
		if _, _, err := Parse(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q) error = %v, want ErrMalformed", raw, err)
		}
	}
}
