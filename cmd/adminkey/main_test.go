package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseScopes(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"", []string{"admin"}, false},
		{"read", []string{"read"}, false},
		{" read , admin ,read", []string{"read", "admin"}, false},
		{"read,write", nil, true},
	}

	for _, tt := range tests {
		got, err := parseScopes(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseScopes(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseScopes(%q) failed: %v", tt.input, err)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("parseScopes(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestWriteOutput(t *testing.T) {
	out := output{KeyID: "01J", Key: "tgk_live_abc123_" + strings.Repeat("0", 32), KeyPrefix: "abc123", Scopes: []string{"read"}}

	var buf bytes.Buffer
	if err := writeOutput(&buf, "plain", out); err != nil {
		t.Fatalf("plain: %v", err)
	}
	if strings.TrimSpace(buf.String()) != out.Key {
		t.Errorf("plain output = %q", buf.String())
	}

	buf.Reset()
	if err := writeOutput(&buf, "JSON", out); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded output
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if decoded.KeyPrefix != "abc123" {
		t.Errorf("decoded = %+v", decoded)
	}

	if err := writeOutput(&buf, "yaml", out); err == nil {
		t.Error("expected error for unknown format")
	}
}
