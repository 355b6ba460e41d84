package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/tutorlink/tutorlink/internal/identity"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876, header was Bearer abc.def-ghi"
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_TOKEN]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "abc.def") {
		t.Fatalf("token leaked: %q", out)
	}
}

func TestUserMessage(t *testing.T) {
	err := errors.New("dial failed for tutor@example.com")
	if got := UserMessage(identity.RoleLearner, "connection error", err); got != "connection error" {
		t.Fatalf("learner message = %q", got)
	}
	got := UserMessage(identity.RoleTutor, "connection error", err)
	if !strings.HasPrefix(got, "connection error: ") || strings.Contains(got, "tutor@example.com") {
		t.Fatalf("tutor message = %q", got)
	}
}
