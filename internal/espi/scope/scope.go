package scope

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/energyos/espi-authz/internal/common/errorx"
)

// ESPI structured scopes encode energy-data granularity as semicolon
// separated key=value pairs, e.g.
//
//	FB=4_5_15;IntervalDuration=3600;BlockDuration=monthly;HistoryLength=13
//
// Any other token in a scope string is opaque and passes through untouched.

const structuredPrefix = "FB="

// BlockDuration is the reporting block granularity of a structured scope.
type BlockDuration string

const (
	BlockDaily   BlockDuration = "daily"
	BlockMonthly BlockDuration = "monthly"
	BlockYearly  BlockDuration = "yearly"
)

func (d BlockDuration) valid() bool {
	switch d {
	case BlockDaily, BlockMonthly, BlockYearly:
		return true
	}
	return false
}

// FunctionBlockScope is a parsed structured ESPI scope expression.
type FunctionBlockScope struct {
	FunctionBlock    string
	IntervalDuration int
	BlockDuration    BlockDuration
	HistoryLength    int
}

// String renders the scope in canonical form: fixed key order, no whitespace.
func (s FunctionBlockScope) String() string {
	return fmt.Sprintf("FB=%s;IntervalDuration=%d;BlockDuration=%s;HistoryLength=%d",
		s.FunctionBlock, s.IntervalDuration, s.BlockDuration, s.HistoryLength)
}

// Token is a single member of a scope set, either opaque or structured.
type Token struct {
	Raw        string
	Structured *FunctionBlockScope
}

// Canonical returns the canonical string form of the token.
func (t Token) Canonical() string {
	if t.Structured != nil {
		return t.Structured.String()
	}
	return t.Raw
}

// ParseToken parses one scope token. A token starting with "FB=" must be a
// fully valid structured expression; anything else is opaque.
func ParseToken(raw string) (Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Token{}, errorx.ErrValidation.WithDescription("empty scope token")
	}
	if !strings.HasPrefix(raw, structuredPrefix) {
		return Token{Raw: raw}, nil
	}

	fb, err := parseStructured(raw)
	if err != nil {
		return Token{}, err
	}
	return Token{Raw: raw, Structured: fb}, nil
}

// Parse splits a space-separated scope string and parses every token.
// A single invalid token rejects the whole set.
func Parse(scope string) ([]Token, error) {
	var tokens []Token
	for _, part := range strings.Fields(scope) {
		tok, err := ParseToken(part)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// Validate reports whether the whole scope string parses.
func Validate(scope string) error {
	_, err := Parse(scope)
	return err
}

// Canonicalize parses a scope string and re-renders every token in canonical
// form, preserving token order.
func Canonicalize(scope string) (string, error) {
	tokens, err := Parse(scope)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		parts = append(parts, tok.Canonical())
	}
	return strings.Join(parts, " "), nil
}

func parseStructured(raw string) (*FunctionBlockScope, error) {
	var (
		fb   FunctionBlockScope
		seen = make(map[string]bool, 4)
	)

	for _, pair := range strings.Split(raw, ";") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || value == "" {
			return nil, errorx.ErrValidation.WithDescription("malformed scope pair %q", pair)
		}
		if seen[key] {
			return nil, errorx.ErrValidation.WithDescription("duplicate scope key %q", key)
		}
		seen[key] = true

		switch key {
		case "FB":
			fb.FunctionBlock = value
		case "IntervalDuration":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, errorx.ErrValidation.WithDescription("IntervalDuration must be a positive integer, got %q", value)
			}
			fb.IntervalDuration = n
		case "BlockDuration":
			d := BlockDuration(value)
			if !d.valid() {
				return nil, errorx.ErrValidation.WithDescription("BlockDuration must be daily, monthly or yearly, got %q", value)
			}
			fb.BlockDuration = d
		case "HistoryLength":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return nil, errorx.ErrValidation.WithDescription("HistoryLength must be a positive integer, got %q", value)
			}
			fb.HistoryLength = n
		default:
			return nil, errorx.ErrValidation.WithDescription("unknown scope key %q", key)
		}
	}

	for _, key := range []string{"FB", "IntervalDuration", "BlockDuration", "HistoryLength"} {
		if !seen[key] {
			return nil, errorx.ErrValidation.WithDescription("missing scope key %q", key)
		}
	}
	return &fb, nil
}
