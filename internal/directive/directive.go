// Package directive turns free-text suggestion descriptions into structured price directives.
//
// Matchers run in order and the first one that recognises the description wins: an absolute
// target price ("to 299.99 PLN") takes precedence over a relative discount ("by 15%").
// Relative discounts are resolved against the current price and rounded to 2 decimal places,
// half away from zero. The package performs no I/O.
package directive

import (
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind tags the variant held by a Directive
type Kind int

const (
	None Kind = iota
	Absolute
	Relative
)

func (k Kind) String() string {
	switch k {
	case Absolute:
		return "absolute"
	case Relative:
		return "relative"
	default:
		return "none"
	}
}

// Directive is the structured outcome of parsing a description.
// Price is the resolved target price for both Absolute and Relative; Percent is set for Relative only.
type Directive struct {
	Kind    Kind
	Price   decimal.Decimal
	Percent int
}

// Found reports whether a price change was recognised
func (d Directive) Found() bool {
	return d.Kind != None
}

type matcher func(description string, currentPrice decimal.Decimal) (Directive, bool)

// matchers is evaluated in order; precedence is the slice order.
var matchers = []matcher{
	matchAbsolute,
	matchRelative,
}

var (
	// "to 299.99", "to 299.99 PLN", "do 299.99" (Polish); the trailing group catches "to 50%".
	absolutePattern = regexp.MustCompile(`(?i)\b(?:to|do)\s+(\d+(?:\.\d+)?)(\s*%)?`)
	// "by 15%", "o 15%" (Polish).
	relativePattern = regexp.MustCompile(`(?i)\b(?:by|o)\s+(\d+)\s*%`)
)

var hundred = decimal.NewFromInt(100)

// Extract parses description into a Directive. currentPrice is only used to resolve relative discounts.
func Extract(description string, currentPrice decimal.Decimal) Directive {
	for _, m := range matchers {
		if d, ok := m(description, currentPrice); ok {
			return d
		}
	}
	return Directive{Kind: None}
}

func matchAbsolute(description string, _ decimal.Decimal) (Directive, bool) {
	for _, m := range absolutePattern.FindAllStringSubmatch(description, -1) {
		if m[2] != "" {
			continue
		}
		price, err := decimal.NewFromString(m[1])
		if err != nil {
			continue
		}
		return Directive{Kind: Absolute, Price: price.Round(2)}, true
	}
	return Directive{}, false
}

func matchRelative(description string, currentPrice decimal.Decimal) (Directive, bool) {
	m := relativePattern.FindStringSubmatch(description)
	if m == nil {
		return Directive{}, false
	}
	percent, err := strconv.Atoi(m[1])
	if err != nil || percent > 100 {
		return Directive{}, false
	}
	return Directive{
		Kind:    Relative,
		Percent: percent,
		Price:   ApplyDiscount(currentPrice, percent),
	}, true
}

// ApplyDiscount returns price reduced by percent, rounded to 2 decimal places
func ApplyDiscount(price decimal.Decimal, percent int) decimal.Decimal {
	factor := hundred.Sub(decimal.NewFromInt(int64(percent))).Div(hundred)
	return price.Mul(factor).Round(2)
}
