package commands

import (
	"encoding/json"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/api/events/", "/api/events/"},
		{"api/events/", "/api/events/"},
		{"  /api/events/  ", "/api/events/"},
		{"https://api.stagepass.dev/api/events/", "https://api.stagepass.dev/api/events/"},
		{"http://localhost:8000/api/events/", "http://localhost:8000/api/events/"},
		{"events", "/events"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parsePath(tt.input); got != tt.expected {
				t.Errorf("parsePath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseBody(t *testing.T) {
	body, err := parseBody(`{"name":"Summer Fest","capacity":500}`)
	if err != nil {
		t.Fatalf("parseBody returned error: %v", err)
	}
	m, ok := body.(map[string]any)
	if !ok {
		t.Fatalf("parseBody returned %T, want map", body)
	}
	if m["name"] != "Summer Fest" {
		t.Errorf("name = %v, want Summer Fest", m["name"])
	}

	if _, err := parseBody(""); err == nil {
		t.Error("empty --data should be rejected")
	}
	if _, err := parseBody(`{not json`); err == nil {
		t.Error("malformed JSON should be rejected")
	}
}

func TestApplyJQ(t *testing.T) {
	raw := json.RawMessage(`{"results":[{"id":1,"name":"a"},{"id":2,"name":"b"}]}`)

	tests := []struct {
		name string
		expr string
		want string
	}{
		{"single value", ".results[0].name", `"a"`},
		{"multiple results become array", ".results[].id", `[1,2]`},
		{"object projection", "{count: (.results | length)}", `{"count":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyJQ(raw, tt.expr)
			if err != nil {
				t.Fatalf("applyJQ(%q) error: %v", tt.expr, err)
			}
			out, err := json.Marshal(got)
			if err != nil {
				t.Fatalf("marshal result: %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("applyJQ(%q) = %s, want %s", tt.expr, out, tt.want)
			}
		})
	}

	t.Run("no results", func(t *testing.T) {
		got, err := applyJQ(raw, ".results[] | select(.id > 10)")
		if err != nil {
			t.Fatalf("applyJQ error: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for empty result set, got %v", got)
		}
	})

	t.Run("bad expression", func(t *testing.T) {
		if _, err := applyJQ(raw, ".["); err == nil {
			t.Error("invalid jq expression should be rejected")
		}
	})

	t.Run("non-JSON input", func(t *testing.T) {
		if _, err := applyJQ(json.RawMessage(`not json`), "."); err == nil {
			t.Error("non-JSON response should be rejected")
		}
	})
}
