// Package answer decides whether a learner's free-text answer matches a
// canonical answer. Numeric answers are compared by value, so "2/4", "0.5"
// and "1/2" are all the same answer.
package answer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// Tolerance is the absolute error allowed when a decimal is matched
	// against a fraction.
	Tolerance = 1e-4

	// MaxDenominator bounds the fraction search for decimal inputs.
	MaxDenominator = 10000

	// maxMagnitude keeps numerator arithmetic inside int64.
	maxMagnitude = 1e12
)

var (
	ErrEmpty             = errors.New("answer is empty")
	ErrZeroDenominator   = errors.New("zero denominator")
	ErrNotNumeric        = errors.New("answer is not numeric")
	ErrOutOfRange        = errors.New("answer magnitude out of range")
	errMalformedFraction = errors.New("malformed fraction")
)

// Equivalent reports whether input and canonical normalise to the same
// value. It fails closed: if either side cannot be parsed the answer does
// not match.
func Equivalent(input, canonical string) bool {
	a, err := Normalize(input)
	if err != nil {
		return false
	}
	b, err := Normalize(canonical)
	if err != nil {
		return false
	}
	return a == b
}

// Normalize renders a numeric answer in canonical form: an integer string
// or a reduced fraction "n/d".
//
// Fractions are reduced by their gcd. Decimals that are integral render as
// integers; other decimals render as the fraction with the smallest
// denominator in 1..MaxDenominator that reproduces the value. A decimal
// typed with three places matches within half a unit of its last place, so
// "0.667" and "0.333" land on 2/3 and 1/3.
func Normalize(s string) (string, error) {
	s = prepare(s)
	if s == "" {
		return "", ErrEmpty
	}
	if strings.Contains(s, "/") {
		num, den, err := parseFraction(s)
		if err != nil {
			return "", err
		}
		return renderFraction(num, den), nil
	}
	return normalizeDecimal(s)
}

// prepare folds compatibility characters (full-width digits, vulgar
// fractions) and maps the Unicode slash and minus variants to ASCII.
func prepare(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '⁄', '∕':
			return '/'
		case '−', '‒', '–':
			return '-'
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func parseFraction(s string) (int64, int64, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", errMalformedFraction, s)
	}
	num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid numerator: %w", err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid denominator: %w", err)
	}
	if den == 0 {
		return 0, 0, ErrZeroDenominator
	}
	if den < 0 {
		num, den = -num, -den
	}
	return num, den, nil
}

func normalizeDecimal(s string) (string, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	if math.Abs(v) >= maxMagnitude {
		return "", ErrOutOfRange
	}
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10), nil
	}

	tol := toleranceFor(s)
	for den := int64(1); den <= MaxDenominator; den++ {
		num := math.Round(v * float64(den))
		if math.Abs(num/float64(den)-v) < tol {
			return renderFraction(int64(num), den), nil
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

// toleranceFor widens the match window for decimals typed to exactly three
// places. Shorter inputs ("0.3") keep the strict tolerance so they are not
// mistaken for repeating fractions.
func toleranceFor(s string) float64 {
	if decimalPlaces(s) == 3 {
		return 5e-4
	}
	return Tolerance
}

func decimalPlaces(s string) int {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	n := 0
	for _, r := range s[dot+1:] {
		if !unicode.IsDigit(r) {
			break
		}
		n++
	}
	return n
}

func renderFraction(num, den int64) string {
	g := gcd(abs(num), den)
	if g > 1 {
		num /= g
		den /= g
	}
	if den == 1 {
		return strconv.FormatInt(num, 10)
	}
	return strconv.FormatInt(num, 10) + "/" + strconv.FormatInt(den, 10)
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
