// Package model defines the core data structures for the chargemap application.
package model

import "time"

// Charge is a single provider-statement line item. Optional attributes are
// nil when unset; an empty string is a concrete value.
type Charge struct {
	CategorizedAt     *time.Time `json:"categorized_at,omitempty"`
	UsageUnit         *string    `json:"usage_unit,omitempty"`
	ServiceType       *string    `json:"service_type,omitempty"`
	ChargeMeasurement *string    `json:"charge_measurement,omitempty"`
	Tariff            *string    `json:"tariff,omitempty"`
	MeterNumber       *string    `json:"meter_number,omitempty"`
	ChargeID          *string    `json:"charge_id,omitempty"`
	MatchedRuleID     *int64     `json:"matched_rule_id,omitempty"`
	StatementID       string     `json:"statement_id"`
	ProviderName      string     `json:"provider_name"`
	AccountNumber     string     `json:"account_number"`
	CustomerName      string     `json:"customer_name"`
	ChargeName        string     `json:"charge_name"`
	ID                int64      `json:"id"`
}

// Uncategorized reports whether no rule has resolved this charge yet.
func (c Charge) Uncategorized() bool {
	return c.ChargeID == nil
}

// StringPtr returns a pointer to s. Handy for optional fields.
func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string or fallback when p is nil.
func Deref(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
