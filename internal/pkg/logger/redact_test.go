package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ana.souza@example.com", "an***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactSecret(t *testing.T) {
	if got := RedactSecret("re_live_abcdef123456"); got != "re_l****" {
		t.Errorf("RedactSecret = %q, want prefix only", got)
	}
	if got := RedactSecret("abc"); got != "****" {
		t.Errorf("short secret = %q, want fully masked", got)
	}
	if got := RedactSecret(""); got != "" {
		t.Errorf("empty secret = %q, want empty", got)
	}
}

func TestRedactPIIValue_SecretKeys(t *testing.T) {
	tests := []struct {
		key, val, want string
	}{
		{"api_key", "re_live_abcdef", "re_l****"},
		{"google_client_secret", "GOCSPX-xyz123", "GOCS****"},
		{"snowflake_password", "hunter22", "hunt****"},
		{"email", "ana@example.com", "an***@example.com"},
		{"error", "delivery to ana@example.com failed", "delivery to an***@example.com failed"},
		{"campaign_id", "camp-1", "camp-1"},
	}
	for _, tt := range tests {
		if got := redactPIIValue(tt.key, tt.val); got != tt.want {
			t.Errorf("redactPIIValue(%q, %q) = %q, want %q", tt.key, tt.val, got, tt.want)
		}
	}
}
