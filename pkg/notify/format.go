package notify

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
)

var one = decimal.NewFromInt(1)

// formatUSD renders v as a dollar amount with thousands separators. Prices
// under one dollar keep up to six decimals.
func formatUSD(v float64) string {
	d := decimal.NewFromFloat(v)
	neg := d.IsNegative()
	d = d.Abs()

	var s string
	if d.LessThan(one) && !d.IsZero() {
		s = d.StringFixed(6)
		s = strings.TrimRight(s, "0")
		if i := strings.IndexByte(s, '.'); len(s)-i-1 < 2 {
			s += strings.Repeat("0", 2-(len(s)-i-1))
		}
	} else {
		s = d.StringFixed(2)
	}

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func trendEmoji(c model.Condition) string {
	if c == model.ConditionAbove {
		return "📈"
	}
	return "📉"
}

func movement(c model.Condition) string {
	if c == model.ConditionAbove {
		return "risen above"
	}
	return "fallen below"
}

func alertsLink(appURL string) string {
	return strings.TrimRight(appURL, "/") + "/alerts"
}
