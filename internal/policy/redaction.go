package policy

import (
	"regexp"

	"github.com/tutorlink/tutorlink/internal/identity"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	// Provider credentials sometimes leak into upstream error bodies.
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-_.]+`)
)

// RedactPII masks emails, phone numbers and bearer tokens.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range []struct {
		re   *regexp.Regexp
		repl string
	}{
		{bearerPattern, "Bearer [REDACTED_TOKEN]"},
		{emailPattern, "[REDACTED_EMAIL]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := r.re.ReplaceAllString(out, r.repl)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// UserMessage renders an error for display. Learners get the coarse
// message only; tutors also see a redacted detail.
func UserMessage(role identity.Role, coarse string, err error) string {
	if err == nil || role != identity.RoleTutor {
		return coarse
	}
	detail, _ := RedactPII(err.Error())
	return coarse + ": " + detail
}
