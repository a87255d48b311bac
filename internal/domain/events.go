/**
 * @description
 * This file defines the events published by the bond-service to the message broker.
 * These structs are the contract for consumers of bond lifecycle messages.
 */
package domain

import "time"

// BondCreatedRoutingKey is the routing key used when a bond is stored.
const BondCreatedRoutingKey = "bond.created"

// BondCreatedEvent is published after a bond has been persisted.
type BondCreatedEvent struct {
	EventID           string    `json:"event_id"`
	BondID            int64     `json:"bond_id"`
	UserID            string    `json:"user_id"`
	ISIN              string    `json:"isin"`
	LEI               string    `json:"lei"`
	LegalName         *string   `json:"legal_name"`
	LegalNameResolved bool      `json:"legal_name_resolved"` // true when the name came from GLEIF
	OccurredAt        time.Time `json:"occurred_at"`
}
