package barcode

import (
	"context"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/core/ports"
)

const (
	maxSuggestionDistance = 3
	maxSuggestions        = 10
)

// Repairer fixes invalid extracted barcodes. It first tries deterministic
// expansions (UPC-E retailer short codes), then falls back to ranking catalog
// codes by edit distance. Repair never links anything; suggestions are for
// manual disambiguation.
type Repairer struct {
	service  ports.BarcodeService
	products ports.ProductRepository
}

func NewRepairer(service ports.BarcodeService, products ports.ProductRepository) *Repairer {
	return &Repairer{service: service, products: products}
}

// Repair returns either a canonical repaired code with no suggestions, or an
// empty code with up to ten ranked catalog suggestions. Both empty means the
// raw value was beyond repair and nothing in the catalog was close.
func (r *Repairer) Repair(ctx context.Context, raw string) (string, []domain.BarcodeSuggestion, error) {
	for _, candidate := range r.candidates(raw) {
		normalized := r.service.Normalize(candidate)
		if normalized == "" || !r.service.IsValidCheckDigit(normalized) {
			continue
		}
		known, err := r.products.Exists(ctx, normalized)
		if err != nil {
			return "", nil, fmt.Errorf("check catalog for %s: %w", normalized, err)
		}
		if known {
			return normalized, nil, nil
		}
	}

	suggestions, err := r.rankCatalog(ctx, r.service.Normalize(raw))
	if err != nil {
		return "", nil, err
	}
	return "", suggestions, nil
}

// candidates yields repair attempts in preference order: the raw code itself,
// then its UPC-E expansion when the code is a retailer short form.
func (r *Repairer) candidates(raw string) []string {
	out := []string{raw}
	if expanded := expandUPCE(digits(raw)); expanded != "" {
		out = append(out, expanded)
	}
	return out
}

func (r *Repairer) rankCatalog(ctx context.Context, normalized string) ([]domain.BarcodeSuggestion, error) {
	if normalized == "" {
		return nil, nil
	}
	codes, err := r.products.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog codes: %w", err)
	}

	var suggestions []domain.BarcodeSuggestion
	for _, code := range codes {
		distance := levenshtein.ComputeDistance(normalized, code)
		if distance > maxSuggestionDistance {
			continue
		}
		suggestions = append(suggestions, domain.BarcodeSuggestion{Code: code, Distance: distance})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Distance != suggestions[j].Distance {
			return suggestions[i].Distance < suggestions[j].Distance
		}
		return suggestions[i].Code < suggestions[j].Code
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}

// expandUPCE expands a 6-8 digit UPC-E short code into its UPC-A form.
// Returns "" when the input is not a UPC-E code, or when an 8-digit form
// carries a check digit that does not verify. Retailers in the US print
// these truncated codes on shelf tags, and extraction reads them verbatim.
func expandUPCE(code string) string {
	var given byte
	switch len(code) {
	case 6:
		// bare payload, assume number system 0
		code = "0" + code
	case 7:
		// number system + payload, no check digit
	case 8:
		// number system + payload + check digit
		given = code[7]
		code = code[:7]
	default:
		return ""
	}
	if code[0] != '0' && code[0] != '1' {
		return ""
	}

	payload := code[1:7]
	var body string
	switch payload[5] {
	case '0', '1', '2':
		body = payload[:2] + string(payload[5]) + "0000" + payload[2:5]
	case '3':
		body = payload[:3] + "00000" + payload[3:5]
	case '4':
		body = payload[:4] + "00000" + string(payload[4])
	default:
		body = payload[:5] + "0000" + string(payload[5])
	}

	full := string(code[0]) + body
	check := checkDigit(full)
	if given != 0 && given != check {
		return ""
	}
	return full + string(check)
}
