package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validFields() map[string]any {
	return map[string]any{
		"isin":     "IE0000928234",
		"size":     json.Number("950.0"),
		"currency": "EUR",
		"maturity": "2040-01-14",
		"lei":      "213800MLLL9HCSPKOV56",
	}
}

func TestValidateBond_Valid(t *testing.T) {
	bond, errs := ValidateBond(validFields())
	if errs != nil {
		t.Fatalf("expected no validation errors, got %v", errs)
	}

	if bond.ISIN != "IE0000928234" || bond.Currency != "EUR" || bond.LEI != "213800MLLL9HCSPKOV56" {
		t.Fatalf("unexpected identifiers: %+v", bond)
	}
	if !bond.Size.Equal(decimal.RequireFromString("950")) {
		t.Fatalf("expected size 950, got %s", bond.Size)
	}
	if bond.Maturity != NewDate(2040, time.January, 14) {
		t.Fatalf("expected maturity 2040-01-14, got %s", bond.Maturity)
	}
	if bond.LegalName != nil {
		t.Fatalf("expected no legal name, got %q", *bond.LegalName)
	}
	if bond.UserID != "" || bond.ID != 0 {
		t.Fatalf("expected owner and id to be unset, got user=%q id=%d", bond.UserID, bond.ID)
	}
}

func TestValidateBond_LegalName(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  *string
	}{
		{name: "absent", value: nil, want: nil},
		{name: "blank", value: "   ", want: nil},
		{name: "set", value: " BNP PARIBAS ", want: ptr("BNP PARIBAS")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			if tt.value != nil {
				fields["legal_name"] = tt.value
			}
			bond, errs := ValidateBond(fields)
			if errs != nil {
				t.Fatalf("expected no validation errors, got %v", errs)
			}
			if !reflect.DeepEqual(tt.want, bond.LegalName) {
				t.Fatalf("expected legal name %v, got %v", deref(tt.want), deref(bond.LegalName))
			}
		})
	}
}

func TestValidateBond_NullLegalNameIsAllowed(t *testing.T) {
	fields := validFields()
	fields["legal_name"] = nil

	bond, errs := ValidateBond(fields)
	if errs != nil {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
	if bond.LegalName != nil {
		t.Fatalf("expected null legal name to stay unset, got %q", *bond.LegalName)
	}
}

func TestValidateBond_FieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
		want  string
	}{
		{name: "isin too long", field: "isin", value: "IE000092823434", want: "Ensure this field has exactly 12 characters."},
		{name: "isin too short", field: "isin", value: "IE00", want: "Ensure this field has exactly 12 characters."},
		{name: "isin blank", field: "isin", value: "", want: "This field may not be blank."},
		{name: "isin null", field: "isin", value: nil, want: "This field may not be null."},
		{name: "isin not a string", field: "isin", value: true, want: "Not a valid string."},
		{name: "currency too long", field: "currency", value: "EURO", want: "Ensure this field has exactly 3 characters."},
		{name: "lei too long", field: "lei", value: strings.Repeat("A", 21), want: "Ensure this field has no more than 20 characters."},
		{name: "legal name too long", field: "legal_name", value: strings.Repeat("x", 129), want: "Ensure this field has no more than 128 characters."},
		{name: "size not a number", field: "size", value: "abc", want: "A valid number is required."},
		{name: "size bool", field: "size", value: false, want: "A valid number is required."},
		{name: "size too many decimals", field: "size", value: json.Number("1.2345"), want: "Ensure that there are no more than 3 decimal places."},
		{name: "size too many digits", field: "size", value: "123456789012345678901", want: "Ensure that there are no more than 20 digits in total."},
		{name: "size too many whole digits", field: "size", value: "123456789012345678.1", want: "Ensure that there are no more than 17 digits before the decimal point."},
		{name: "maturity wrong format", field: "maturity", value: "14/01/2040", want: "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."},
		{name: "maturity invalid day", field: "maturity", value: "2040-02-30", want: "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."},
		{name: "maturity number", field: "maturity", value: json.Number("20400114"), want: "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			fields[tt.field] = tt.value

			_, errs := ValidateBond(fields)
			if errs == nil {
				t.Fatal("expected validation errors")
			}
			if got := errs.Fields(); !reflect.DeepEqual(got, []string{tt.field}) {
				t.Fatalf("expected errors only for %s, got %v", tt.field, got)
			}
			if got := errs[tt.field]; !reflect.DeepEqual(got, []string{tt.want}) {
				t.Fatalf("expected %q, got %v", tt.want, got)
			}
		})
	}
}

func TestValidateBond_ReportsAllMissingFields(t *testing.T) {
	_, errs := ValidateBond(map[string]any{})
	if errs == nil {
		t.Fatal("expected validation errors")
	}

	want := []string{"currency", "isin", "lei", "maturity", "size"}
	if got := errs.Fields(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected missing fields %v, got %v", want, got)
	}
	for _, field := range errs.Fields() {
		if got := errs[field]; !reflect.DeepEqual(got, []string{"This field is required."}) {
			t.Fatalf("unexpected messages for %s: %v", field, got)
		}
	}
}

func TestValidateBond_ReportsEveryViolation(t *testing.T) {
	fields := validFields()
	fields["isin"] = "IE000092823434"
	fields["currency"] = "EURO"
	fields["maturity"] = "tomorrow"

	_, errs := ValidateBond(fields)
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if got := errs.Fields(); !reflect.DeepEqual(got, []string{"currency", "isin", "maturity"}) {
		t.Fatalf("unexpected failing fields %v", got)
	}
	if !strings.Contains(errs.Error(), "isin: Ensure this field has exactly 12 characters.") {
		t.Fatalf("unexpected error text %q", errs.Error())
	}
}

func TestValidateBond_IgnoresUnknownFields(t *testing.T) {
	fields := validFields()
	fields["id"] = json.Number("99")
	fields["user"] = "someone-else"

	bond, errs := ValidateBond(fields)
	if errs != nil {
		t.Fatalf("expected unknown fields to be ignored, got %v", errs)
	}
	if bond.ID != 0 || bond.UserID != "" {
		t.Fatalf("expected id and owner to be ignored, got id=%d user=%q", bond.ID, bond.UserID)
	}
}

func TestCheckPrecision(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{value: "0", want: ""},
		{value: "0.000", want: ""},
		{value: "123.93", want: ""},
		{value: "950.0000", want: ""},
		{value: "-1.125", want: ""},
		{value: "12345678901234567.123", want: ""},
		{value: "0.0001", want: "Ensure that there are no more than 3 decimal places."},
		{value: "1e20", want: "Ensure that there are no more than 20 digits in total."},
		{value: "1e17", want: "Ensure that there are no more than 17 digits before the decimal point."},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got := checkPrecision(decimal.RequireFromString(tt.value), SizeMaxDigits, SizeDecimalPlaces)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func ptr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
