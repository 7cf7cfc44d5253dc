// Package lexer splits a physical config line into either an
// environment-assignment or a whitespace-tokenised job line (spec §4.1).
package lexer

import (
	"regexp"
	"strings"
)

var envvarRe = regexp.MustCompile(`^([A-Za-z_0-9]+)\s*=\s*(.*)$`)

// Assignment is a parsed "NAME = VALUE" directive line.
type Assignment struct {
	Name  string
	Value string
}

// Line is the result of lexing one physical line. Exactly one of
// Assignment or Tokens is populated; Blank is true for lines that carry
// neither (empty or comment-only).
type Line struct {
	Blank      bool
	Assignment *Assignment
	Tokens     []string
	// Joined is the tokens rejoined with single spaces, matching the
	// original's ' '.join(parts) normalisation used for provenance and
	// hashing.
	Joined string
}

// Lex trims outer whitespace, drops blank lines and '#' comments, and
// otherwise classifies the line as an environment-assignment or a job
// line. Inner whitespace runs are collapsed for job lines via token
// rejoining; assignment values are taken from the regex capture as-is
// (only the single matching leading+trailing quote pair is stripped).
func Lex(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Line{Blank: true}
	}

	if m := envvarRe.FindStringSubmatch(trimmed); m != nil {
		return Line{Assignment: &Assignment{Name: m[1], Value: stripQuotes(m[2])}}
	}

	tokens := strings.Fields(trimmed)
	return Line{Tokens: tokens, Joined: strings.Join(tokens, " ")}
}

// stripQuotes removes one matching pair of leading+trailing ' or "
// (never a mixed pair), mirroring value.strip("'").strip('"') acting on
// a single pair in the original source.
func stripQuotes(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
