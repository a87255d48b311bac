/**
 * @description
 * This file contains the field-level validation for incoming bond payloads.
 * Every field is checked and all violations are collected so that a client
 * receives the complete error mapping in a single response.
 */
package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Field names as they appear in request payloads and error mappings.
const (
	FieldISIN      = "isin"
	FieldSize      = "size"
	FieldCurrency  = "currency"
	FieldMaturity  = "maturity"
	FieldLEI       = "lei"
	FieldLegalName = "legal_name"
)

const (
	msgRequired      = "This field is required."
	msgNull          = "This field may not be null."
	msgBlank         = "This field may not be blank."
	msgInvalidString = "Not a valid string."
	msgInvalidNumber = "A valid number is required."
	msgDateFormat    = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
)

// FieldErrors maps a field name to the list of problems found with it.
type FieldErrors map[string][]string

// Add records a message against a field.
func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Fields returns the sorted names of the failing fields.
func (e FieldErrors) Fields() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, name := range e.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e[name], " ")))
	}
	return "invalid bond: " + strings.Join(parts, "; ")
}

// ValidateBond checks raw request fields against the bond constraints.
// On success it returns a Bond with every field but ID and UserID populated
// and a nil FieldErrors. Unknown fields are ignored.
func ValidateBond(fields map[string]any) (Bond, FieldErrors) {
	errs := FieldErrors{}
	var bond Bond

	if isin, ok := stringField(fields, FieldISIN, true, errs); ok {
		if utf8.RuneCountInString(isin) != ISINLength {
			errs.Add(FieldISIN, fmt.Sprintf("Ensure this field has exactly %d characters.", ISINLength))
		}
		bond.ISIN = isin
	}

	if size, ok := decimalField(fields, FieldSize, errs); ok {
		if msg := checkPrecision(size, SizeMaxDigits, SizeDecimalPlaces); msg != "" {
			errs.Add(FieldSize, msg)
		}
		bond.Size = size
	}

	if currency, ok := stringField(fields, FieldCurrency, true, errs); ok {
		if utf8.RuneCountInString(currency) != CurrencyLength {
			errs.Add(FieldCurrency, fmt.Sprintf("Ensure this field has exactly %d characters.", CurrencyLength))
		}
		bond.Currency = currency
	}

	if maturity, ok := dateField(fields, FieldMaturity, errs); ok {
		bond.Maturity = maturity
	}

	if lei, ok := stringField(fields, FieldLEI, true, errs); ok {
		if utf8.RuneCountInString(lei) > LEIMaxLength {
			errs.Add(FieldLEI, fmt.Sprintf("Ensure this field has no more than %d characters.", LEIMaxLength))
		}
		bond.LEI = lei
	}

	if name, ok := stringField(fields, FieldLegalName, false, errs); ok && name != "" {
		if utf8.RuneCountInString(name) > LegalNameMaxLength {
			errs.Add(FieldLegalName, fmt.Sprintf("Ensure this field has no more than %d characters.", LegalNameMaxLength))
		}
		bond.LegalName = &name
	}

	if len(errs) > 0 {
		return Bond{}, errs
	}
	return bond, nil
}

// stringField extracts a trimmed string. ok is false when the field is
// absent, null or of the wrong type; blank values are only an error when the
// field is required.
func stringField(fields map[string]any, name string, required bool, errs FieldErrors) (string, bool) {
	raw, present := fields[name]
	if !present {
		if required {
			errs.Add(name, msgRequired)
		}
		return "", false
	}
	if raw == nil {
		if required {
			errs.Add(name, msgNull)
		}
		return "", false
	}

	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int, int64:
		s = fmt.Sprint(v)
	default:
		errs.Add(name, msgInvalidString)
		return "", false
	}

	s = strings.TrimSpace(s)
	if s == "" && required {
		errs.Add(name, msgBlank)
		return "", false
	}
	return s, true
}

func decimalField(fields map[string]any, name string, errs FieldErrors) (decimal.Decimal, bool) {
	raw, present := fields[name]
	if !present {
		errs.Add(name, msgRequired)
		return decimal.Decimal{}, false
	}

	var s string
	switch v := raw.(type) {
	case nil:
		errs.Add(name, msgNull)
		return decimal.Decimal{}, false
	case string:
		s = strings.TrimSpace(v)
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	default:
		errs.Add(name, msgInvalidNumber)
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		errs.Add(name, msgInvalidNumber)
		return decimal.Decimal{}, false
	}
	return d, true
}

func dateField(fields map[string]any, name string, errs FieldErrors) (Date, bool) {
	raw, present := fields[name]
	if !present {
		errs.Add(name, msgRequired)
		return Date{}, false
	}
	if raw == nil {
		errs.Add(name, msgNull)
		return Date{}, false
	}
	s, ok := raw.(string)
	if !ok {
		errs.Add(name, msgDateFormat)
		return Date{}, false
	}
	d, err := ParseDate(strings.TrimSpace(s))
	if err != nil {
		errs.Add(name, msgDateFormat)
		return Date{}, false
	}
	return d, true
}

// checkPrecision returns the first precision violation of d, or "".
// Trailing fractional zeros do not count towards the decimal places.
func checkPrecision(d decimal.Decimal, maxDigits, decimalPlaces int) string {
	coef := new(big.Int).Abs(d.Coefficient())
	exp := int(d.Exponent())

	ten := big.NewInt(10)
	if coef.Sign() == 0 {
		exp = 0
	}
	for exp < 0 {
		q, r := new(big.Int).QuoRem(coef, ten, new(big.Int))
		if r.Sign() != 0 {
			break
		}
		coef = q
		exp++
	}

	n := len(coef.String())
	var total, decimals int
	switch {
	case exp >= 0:
		total, decimals = n+exp, 0
	case -exp > n:
		total, decimals = -exp, -exp
	default:
		total, decimals = n, -exp
	}
	whole := total - decimals

	switch {
	case total > maxDigits:
		return fmt.Sprintf("Ensure that there are no more than %d digits in total.", maxDigits)
	case decimals > decimalPlaces:
		return fmt.Sprintf("Ensure that there are no more than %d decimal places.", decimalPlaces)
	case whole > maxDigits-decimalPlaces:
		return fmt.Sprintf("Ensure that there are no more than %d digits before the decimal point.", maxDigits-decimalPlaces)
	}
	return ""
}
