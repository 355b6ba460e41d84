package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestComponentTagsEvents(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, false).Component("presence")
	log.Info().Str("room", "room-abc").Msg("applied")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, output %q", err, buf.String())
	}
	if line["c"] != "presence" || line["room"] != "room-abc" || line["message"] != "applied" {
		t.Fatalf("log line = %v", line)
	}
}

func TestDebugFilteredUnlessEnabled(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, false).Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output = %q, want none", buf.String())
	}
	NewWriter(&buf, true).Debug().Msg("shown")
	if buf.Len() == 0 {
		t.Fatalf("debug output missing with debug enabled")
	}
}
