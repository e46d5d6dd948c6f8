package dashboard

import (
	"fmt"
	"math"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatUSD formats a dollar amount as $1,234.56.
func FormatUSD(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := int(math.Round(v * 100))
	return fmt.Sprintf("%s$%s.%02d", sign, FormatInt(cents/100), cents%100)
}

// FormatProfit formats a realized profit with an explicit sign, "+$12.30".
func FormatProfit(v float64) string {
	if v > 0 {
		return "+" + FormatUSD(v)
	}
	return FormatUSD(v)
}

// FormatPercent formats a fraction as a percentage, 0.253 -> "25.3%".
func FormatPercent(frac float64) string {
	return fmt.Sprintf("%.1f%%", frac*100)
}

// FormatReturn formats a fractional return with an explicit sign. The
// decimal is dropped at 100% and above to keep width compact.
func FormatReturn(frac float64) string {
	pct := frac * 100
	if math.Abs(pct) >= 100 {
		return fmt.Sprintf("%+.0f%%", pct)
	}
	return fmt.Sprintf("%+.1f%%", pct)
}

// FormatRatio formats a ratio such as Sharpe to two decimals.
func FormatRatio(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatPrice formats an asset price, or "-" for zero.
func FormatPrice(p float64) string {
	if p == 0 {
		return "-"
	}
	return FormatUSD(p)
}
