package helpers

import (
	"fmt"
	"math"
)

// FormatUSD formats a dollar amount with comma thousand separators and cents,
// e.g. 12345.6 -> "$12,345.60" and -50 -> "-$50.00".
func FormatUSD(amount float64) string {
	negative := amount < 0
	cents := int64(math.Round(math.Abs(amount) * 100))

	// Convert whole dollars to string and add thousand separators
	str := fmt.Sprintf("%d", cents/100)
	length := len(str)

	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return fmt.Sprintf("-$%s.%02d", result, cents%100)
	}
	return fmt.Sprintf("$%s.%02d", result, cents%100)
}
