package utils

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"5511999999999@s.whatsapp.net", "5511999999999"},
		{"5511999999999:12@s.whatsapp.net", "5511999999999"},
		{"whatsapp:+55 11 99999-9999", "5511999999999"},
		{"  +1 (415) 523-8886 ", "14155238886"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.raw); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		digits string
		want   bool
	}{
		{"123456789", false},
		{"1234567890", true},
		{"5511999999999", true},
		{"123456789012345", true},
		{"1234567890123456", false},
		{"55119999x9999", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidPhone(tt.digits); got != tt.want {
			t.Errorf("IsValidPhone(%q) = %v, want %v", tt.digits, got, tt.want)
		}
	}
}

func TestPhoneVariants(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  []string
	}{
		{"full mobile", "5511987654321", []string{"5511987654321", "551187654321", "11987654321"}},
		{"missing nine", "551187654321", []string{"551187654321", "5511987654321", "1187654321"}},
		{"no country code", "11987654321", []string{"11987654321", "5511987654321", "551187654321"}},
		{"landline no country code", "1187654321", []string{"1187654321", "551187654321", "5511987654321"}},
		{"foreign", "14155238886", []string{"14155238886"}},
		{"jid", "5511987654321@s.whatsapp.net", []string{"5511987654321", "551187654321", "11987654321"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PhoneVariants(tt.phone)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PhoneVariants(%q) = %v, want %v", tt.phone, got, tt.want)
			}
			if len(got) > 4 {
				t.Errorf("too many variants: %d", len(got))
			}
		})
	}
}

func TestSamePhone(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"5511987654321", "5511987654321@s.whatsapp.net", true},
		{"5511987654321", "11987654321", true},
		{"5511987654321", "551187654321", true},
		{"551187654321", "5511987654321", true},
		{"5511987654321", "5511912345678", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := SamePhone(tt.a, tt.b); got != tt.want {
			t.Errorf("SamePhone(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		p, err := GeneratePassword(10)
		if err != nil {
			t.Fatalf("GeneratePassword: %v", err)
		}
		if len(p) != 10 {
			t.Fatalf("len = %d, want 10", len(p))
		}
		for _, r := range p {
			if !strings.ContainsRune(passwordAlphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, p)
			}
		}
		seen[p] = true
	}
	if len(seen) < 2 {
		t.Error("passwords are not random")
	}

	p, err := GeneratePassword(0)
	if err != nil || len(p) != 8 {
		t.Errorf("GeneratePassword(0) = %q, %v; want 8 characters", p, err)
	}
}

func TestTrialUsername(t *testing.T) {
	if got := TrialUsername("", 7); got != "teste7" {
		t.Errorf("got %q", got)
	}
	if got := TrialUsername("iptv", 42); got != "iptv42" {
		t.Errorf("got %q", got)
	}
}
