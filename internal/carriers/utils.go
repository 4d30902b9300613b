package carriers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CleanPhoneNumber normalizes phone numbers to 10-digit Indian format
// Handles various input formats including:
// - 10 digits: 9876543210
// - With leading 0: 09876543210
// - With country code: 919876543210, +919876543210
func CleanPhoneNumber(phone string) string {
	var digits strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	d := digits.String()

	switch {
	case len(d) == 10:
		return d
	case len(d) == 11 && d[0] == '0':
		return d[1:]
	case len(d) == 12 && d[:2] == "91":
		return d[2:]
	case len(d) > 10:
		return d[len(d)-10:]
	default:
		// Less than 10 digits - return empty to indicate invalid
		return ""
	}
}

// flexString decodes a JSON string, number or bool into its textual form.
// Partner APIs send the same numeric field as "100.50" or 100.5 depending on the endpoint.
// Objects and arrays decode as empty so one odd field never rejects its record.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(raw)
	return nil
}

func (f flexString) String() string {
	return string(f)
}

// Decimal parses the value, reporting false for empty or non-numeric input
func (f flexString) Decimal() (decimal.Decimal, bool) {
	if f == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(f))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Float parses the value as a finite float64
func (f flexString) Float() (float64, bool) {
	d, ok := f.Decimal()
	if !ok {
		return 0, false
	}
	v, _ := d.Float64()
	return v, true
}

// Int64 parses the value as an integer, truncating any fraction
func (f flexString) Int64() (int64, bool) {
	if v, err := strconv.ParseInt(string(f), 10, 64); err == nil {
		return v, true
	}
	d, ok := f.Decimal()
	if !ok {
		return 0, false
	}
	return d.IntPart(), true
}

// chargeableWeightGrams returns the greater of actual and volumetric weight in grams.
// Volumetric weight is L*B*H/5000 with dimensions in cm.
func chargeableWeightGrams(weightKg, length, width, height float64) float64 {
	volumetric := (length * width * height) / 5000
	chargeable := weightKg
	if volumetric > chargeable {
		chargeable = volumetric
	}
	return chargeable * 1000
}

// mentionsToken reports whether a partner message points at an expired or invalid token
func mentionsToken(message string) bool {
	return strings.Contains(strings.ToLower(message), "token")
}
