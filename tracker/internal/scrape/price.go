package scrape

import "regexp"

// Turkish price notations seen across the supported shops, tried in order.
var priceRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d+[.,]\d+\s*TL`),
	regexp.MustCompile(`(?i)\d+\s*TL`),
	regexp.MustCompile(`(?i)TL\s*\d+[.,]\d+`),
	regexp.MustCompile(`₺\s*\d+[.,]?\d*`),
}

// findPrice scans element text for a price. Returns PriceUnknown when no
// pattern matches.
func findPrice(text string) string {
	for _, re := range priceRes {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return PriceUnknown
}
