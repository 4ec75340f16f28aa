package services

import (
	"strconv"
	"strings"
	"unicode"
)

// ParsedInput is the normalized view of one inbound text
type ParsedInput struct {
	Raw        string
	Normalized string

	IsNumber bool
	Number   int

	IsCommand   bool
	CommandName string
	CommandArgs []string

	Keywords []string
}

// ParseInput normalizes a raw message text. It never fails; for empty or
// unreadable input every field is left at its zero value.
func ParseInput(raw string) ParsedInput {
	in := ParsedInput{Raw: raw}
	in.Normalized = strings.ToLower(strings.TrimSpace(raw))
	if in.Normalized == "" {
		return in
	}

	if isDigits(in.Normalized) && len(in.Normalized) <= 9 {
		if n, err := strconv.Atoi(in.Normalized); err == nil {
			in.IsNumber = true
			in.Number = n
		}
	}

	if c := in.Normalized[0]; (c == '/' || c == '!') && len(in.Normalized) > 1 {
		fields := strings.Fields(in.Normalized[1:])
		if len(fields) > 0 && fields[0] != "" {
			in.IsCommand = true
			in.CommandName = fields[0]
			in.CommandArgs = fields[1:]
		}
	}

	for _, tok := range strings.FieldsFunc(in.Normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(tok)) > 2 {
			in.Keywords = append(in.Keywords, tok)
		}
	}
	return in
}

// HasKeyword reports whether any of words appears among the keywords.
func (p ParsedInput) HasKeyword(words ...string) bool {
	for _, k := range p.Keywords {
		folded := foldAccents(k)
		for _, w := range words {
			if folded == w {
				return true
			}
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
