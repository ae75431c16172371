package payments

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"whatsapp-commerce/internal/catalog"
)

var nonPriceRe = regexp.MustCompile(`[^\d,.-]`)

// ParsePrice converts a pt-BR formatted price string ("R$ 1.234,56") to a
// float amount. Returns fallback when the string does not parse.
func ParsePrice(price string, fallback float64) float64 {
	if price == "" {
		return fallback
	}
	s := nonPriceRe.ReplaceAllString(price, "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// ComputeAmount totals the product base price plus every selected bump,
// rounded to cents.
func ComputeAmount(product catalog.Product, bumpFlags map[string]bool) float64 {
	total := ParsePrice(product.Price, 0)
	for _, b := range product.Bumps {
		if b.ID != "" && bumpFlags[b.ID] {
			total += ParsePrice(b.Price, 0)
		}
	}
	return math.Round(total*100) / 100
}
