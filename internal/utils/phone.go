package utils

import (
	"strings"
	"unicode"
)

// Brazilian numbers carry the country code 55, a two digit area code and,
// for mobiles, a leading 9 in the subscriber part.
const brazilCode = "55"

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone reduces a gateway identifier ("5511999999999@s.whatsapp.net",
// "whatsapp:+55 11 99999-9999", "5511999999999:12@s.whatsapp.net") to its digits.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "whatsapp:")
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	// Device suffix of multi-device JIDs.
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return DigitsOnly(s)
}

// IsValidPhone accepts 10 to 15 decimal digits.
func IsValidPhone(digits string) bool {
	if len(digits) < 10 || len(digits) > 15 {
		return false
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// SamePhone compares two numbers tolerating a missing country code or a
// missing mobile 9.
func SamePhone(a, b string) bool {
	a, b = NormalizePhone(a), NormalizePhone(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	for _, va := range PhoneVariants(a) {
		if va == b {
			return true
		}
	}
	return false
}

// PhoneVariants lists the digit forms worth trying when a send fails, in
// order of preference. The first entry is always the normalized input.
func PhoneVariants(phone string) []string {
	p := NormalizePhone(phone)
	if p == "" {
		return nil
	}
	out := []string{p}
	add := func(v string) {
		if v == "" || len(out) >= 4 {
			return
		}
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}

	switch {
	case strings.HasPrefix(p, brazilCode) && len(p) == 13 && p[4] == '9':
		add(p[:4] + p[5:])
		add(p[2:])
	case strings.HasPrefix(p, brazilCode) && len(p) == 12:
		add(p[:4] + "9" + p[4:])
		add(p[2:])
	case len(p) == 11 && p[2] == '9':
		add(brazilCode + p)
		add(brazilCode + p[:2] + p[3:])
	case len(p) == 10:
		add(brazilCode + p)
		add(brazilCode + p[:2] + "9" + p[2:])
	}
	return out
}
