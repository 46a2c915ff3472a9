// Package barcode validates, normalizes and repairs GTIN product codes.
package barcode

import "strings"

// Service implements GTIN check-digit validation and canonicalization.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// IsValidCheckDigit verifies the trailing mod-10 check digit of a GTIN-8,
// UPC-A, EAN-13 or GTIN-14 code.
func (s *Service) IsValidCheckDigit(code string) bool {
	code = digits(code)
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	return checkDigit(code[:len(code)-1]) == code[len(code)-1]
}

// Normalize canonicalizes a code for comparison: EAN-8 stays eight digits,
// everything else is left-padded with zeros to EAN-13. A 12-digit UPC-A and
// its 13-digit zero-padded EAN form compare equal after normalization.
func (s *Service) Normalize(code string) string {
	code = digits(code)
	if code == "" || len(code) == 8 {
		return code
	}
	if len(code) < 13 {
		return strings.Repeat("0", 13-len(code)) + code
	}
	return code
}

// checkDigit computes the GTIN mod-10 check digit for the payload digits.
// Weights alternate 3,1 from the rightmost payload digit.
func checkDigit(payload string) byte {
	sum := 0
	weight := 3
	for i := len(payload) - 1; i >= 0; i-- {
		sum += int(payload[i]-'0') * weight
		weight = 4 - weight
	}
	return byte('0' + (10-sum%10)%10)
}

func digits(code string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(code) {
		if r < '0' || r > '9' {
			return ""
		}
		b.WriteRune(r)
	}
	return b.String()
}
