/**
 * @description
 * This file defines the core domain model for a Bond holding.
 * A bond is owned by exactly one user and is only ever visible to that user.
 *
 * @notes
 * - UserID is never part of the serialized representation.
 * - Size is serialized as a fixed-point string with three decimals.
 */
package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Field limits for a bond record.
const (
	ISINLength         = 12
	CurrencyLength     = 3
	LEIMaxLength       = 20
	LegalNameMaxLength = 128
	SizeMaxDigits      = 20
	SizeDecimalPlaces  = 3
)

// Bond represents a bond holding as stored in our database.
type Bond struct {
	ID        int64
	ISIN      string
	Size      decimal.Decimal
	Currency  string
	Maturity  Date
	LEI       string
	LegalName *string
	UserID    string
}

// bondJSON is the wire representation of a Bond.
type bondJSON struct {
	ID        int64   `json:"id"`
	ISIN      string  `json:"isin"`
	Size      string  `json:"size"`
	Currency  string  `json:"currency"`
	Maturity  Date    `json:"maturity"`
	LEI       string  `json:"lei"`
	LegalName *string `json:"legal_name"`
}

// MarshalJSON implements json.Marshaler.
func (b Bond) MarshalJSON() ([]byte, error) {
	return json.Marshal(bondJSON{
		ID:        b.ID,
		ISIN:      b.ISIN,
		Size:      b.Size.StringFixed(SizeDecimalPlaces),
		Currency:  b.Currency,
		Maturity:  b.Maturity,
		LEI:       b.LEI,
		LegalName: b.LegalName,
	})
}

// UnmarshalJSON implements json.Unmarshaler. It is the inverse of MarshalJSON
// and is used by API clients and tests; UserID is left empty.
func (b *Bond) UnmarshalJSON(data []byte) error {
	var raw bondJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	size, err := decimal.NewFromString(raw.Size)
	if err != nil {
		return fmt.Errorf("invalid bond size %q: %w", raw.Size, err)
	}
	*b = Bond{
		ID:        raw.ID,
		ISIN:      raw.ISIN,
		Size:      size,
		Currency:  raw.Currency,
		Maturity:  raw.Maturity,
		LEI:       raw.LEI,
		LegalName: raw.LegalName,
	}
	return nil
}

// HasLegalName reports whether the bond carries a non-empty legal name.
func (b Bond) HasLegalName() bool {
	return b.LegalName != nil && *b.LegalName != ""
}

func (b Bond) String() string { return fmt.Sprintf("Bond (%s)", b.ISIN) }
