package guard

import (
	"errors"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/users", "u_demo/profile_static.json", false},
		{"/data/users", "../etc/passwd", true},
		{"/data/users", "u_demo/../../outside", true},
		{"/data/users", "u_demo", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"u_demo_young_male", "diet_2w", "user-1.a"} {
		if err := ValidateIdentifier(ok); err != nil {
			t.Errorf("ValidateIdentifier(%q): unexpected error %v", ok, err)
		}
	}
	bad := []string{"", ".", "..", "../etc/passwd", "has spaces", "a/b", strings.Repeat("a", MaxIdentifierLen+1)}
	for _, s := range bad {
		err := ValidateIdentifier(s)
		if !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("ValidateIdentifier(%q): got %v, want ErrInvalidIdentifier", s, err)
		}
	}
}

func TestValidateHTTPURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://api.example.com/v1", false},
		{"http://127.0.0.1:11434/v1", false},
		{"ftp://example.com/data", true},
		{"javascript:alert(1)", true},
		{"http://", true},
		{"/relative/path", true},
	}
	for _, tt := range tests {
		err := ValidateHTTPURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateHTTPURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("at limit: got %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello!"), 5); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("over limit: got %v", err)
	}
}
