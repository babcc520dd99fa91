// Package asset handles asset ticker symbol validation and normalization.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches normalized tickers: 1-12 uppercase letters/digits.
// Examples: BTC, ETH, SOL, 1INCH.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)

var (
	ErrEmptySymbol   = errors.New("asset: symbol is empty")
	ErrInvalidSymbol = errors.New("asset: invalid symbol format")
)

// NormalizeSymbol trims and upper-cases a ticker and validates its shape.
// Symbols are the ledger map keys, so every entry point normalizes through
// here before touching a ledger.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", ErrEmptySymbol
	}
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q (expected 1-12 uppercase letters/digits)", ErrInvalidSymbol, symbol)
	}
	return s, nil
}
