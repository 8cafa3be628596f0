package identifier

import (
	"errors"
	"fmt"
)

// CodeWidth is the fixed length of a stock code.
const CodeWidth = 6

// ErrMalformed is returned by Parse for codes of the wrong length or with non-digit characters.
var ErrMalformed = errors.New("malformed code")

// Market is the exchange namespace a code belongs to, derived from its leading digit.
type Market int

const (
	// MarketUnknown is any leading digit other than 6, 0 or 3
	MarketUnknown Market = iota
	// MarketSHSE is the Shanghai exchange (leading digit 6)
	MarketSHSE
	// MarketSZSE is the Shenzhen exchange (leading digit 0 or 3)
	MarketSZSE
)

// String returns the exchange tag used in URLs, filenames and logs.
func (m Market) String() string {
	switch m {
	case MarketSHSE:
		return "SHSE"
	case MarketSZSE:
		return "SZSE"
	default:
		return "UNKNOWN"
	}
}

// Identifier is one validated unit of work.
type Identifier struct {
	Code   string
	Market Market
}

// String returns the code.
func (id Identifier) String() string {
	return id.Code
}

// MarketOf derives the market from the leading digit of code.
func MarketOf(code string) Market {
	if code == "" {
		return MarketUnknown
	}
	switch code[0] {
	case '6':
		return MarketSHSE
	case '0', '3':
		return MarketSZSE
	default:
		return MarketUnknown
	}
}

// Parse validates code and derives its market. Codes with an unknown
// leading digit are valid; what to do with them is decided when the
// request is built.
func Parse(code string) (Identifier, error) {
	if len(code) != CodeWidth {
		return Identifier{}, fmt.Errorf("%w: %q has length %d, want %d", ErrMalformed, code, len(code), CodeWidth)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return Identifier{}, fmt.Errorf("%w: %q is not numeric", ErrMalformed, code)
		}
	}
	return Identifier{Code: code, Market: MarketOf(code)}, nil
}

// Format zero-pads n to CodeWidth digits.
func Format(n int) string {
	return fmt.Sprintf("%0*d", CodeWidth, n)
}
