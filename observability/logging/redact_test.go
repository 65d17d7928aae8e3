package logging

import "testing"

func TestMaskFieldRedactsUnknownKeys(t *testing.T) {
	attr := MaskField("apiKey", "hunter2")
	if got := attr.Value.String(); got != RedactedValue {
		t.Fatalf("value = %q, want %q", got, RedactedValue)
	}
	if attr.Key != "apiKey" {
		t.Fatalf("key = %q", attr.Key)
	}
}

func TestMaskFieldPassesAllowlistedKeys(t *testing.T) {
	attr := MaskField("outcome", "success")
	if got := attr.Value.String(); got != "success" {
		t.Fatalf("value = %q", got)
	}
}

func TestMaskFieldKeepsEmptyValues(t *testing.T) {
	attr := MaskField("apiKey", "")
	if got := attr.Value.String(); got != "" {
		t.Fatalf("value = %q, want empty", got)
	}
}

func TestMaskValue(t *testing.T) {
	if got := MaskValue("secret"); got != RedactedValue {
		t.Fatalf("MaskValue = %q", got)
	}
	if got := MaskValue("  "); got != "  " {
		t.Fatalf("MaskValue on blank = %q", got)
	}
}

func TestRedactionAllowlistSorted(t *testing.T) {
	keys := RedactionAllowlist()
	if len(keys) == 0 {
		t.Fatal("allowlist empty")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("allowlist not sorted at %d: %q >= %q", i, keys[i-1], keys[i])
		}
	}
	if !IsAllowlisted("Error") {
		t.Fatal("case-insensitive lookup failed")
	}
	if IsAllowlisted("password") {
		t.Fatal("password must not be allowlisted")
	}
}
