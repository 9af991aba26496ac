package state

import (
	"time"

	statusx "github.com/rentalgenie/rental-genie-agent/agent/status"
)

// Recognized profile field names. These are the wire surface shared with the
// extractor, persistence schemas and the dashboard.
const (
	FieldAge                = "age"
	FieldSex                = "sex"
	FieldOccupation         = "occupation"
	FieldMoveInDate         = "move_in_date"
	FieldRentalDuration     = "rental_duration"
	FieldGuarantorStatus    = "guarantor_status"
	FieldGuarantorDetails   = "guarantor_details"
	FieldViewingInterest    = "viewing_interest"
	FieldAvailability       = "availability"
	FieldLanguagePreference = "language_preference"
	FieldPropertyInterest   = "property_interest"
	FieldApplicationDate    = "application_date"
	FieldLeaseStartDate     = "lease_start_date"
	FieldLeaseEndDate       = "lease_end_date"
	FieldNotes              = "notes"
)

// requiredFields gate the automatic prospect -> qualified promotion.
var requiredFields = []string{
	FieldAge,
	FieldOccupation,
	FieldMoveInDate,
	FieldRentalDuration,
	FieldGuarantorStatus,
}

// TenantProfile accumulates everything learned about one prospective tenant
// over a conversation. Values are kept as extracted strings; interpretation
// (dates, numbers) is left to consumers.
type TenantProfile struct {
	SessionID string               `json:"session_id"`
	Status    statusx.TenantStatus `json:"status"`

	Age                string `json:"age,omitempty"`
	Sex                string `json:"sex,omitempty"`
	Occupation         string `json:"occupation,omitempty"`
	MoveInDate         string `json:"move_in_date,omitempty"`
	RentalDuration     string `json:"rental_duration,omitempty"`
	GuarantorStatus    string `json:"guarantor_status,omitempty"`
	GuarantorDetails   string `json:"guarantor_details,omitempty"`
	ViewingInterest    string `json:"viewing_interest,omitempty"`
	Availability       string `json:"availability,omitempty"`
	LanguagePreference string `json:"language_preference,omitempty"`
	PropertyInterest   string `json:"property_interest,omitempty"`
	ApplicationDate    string `json:"application_date,omitempty"`
	LeaseStartDate     string `json:"lease_start_date,omitempty"`
	LeaseEndDate       string `json:"lease_end_date,omitempty"`
	Notes              string `json:"notes,omitempty"`

	// Extra holds extracted attributes outside the recognized set.
	Extra map[string]string `json:"extra,omitempty"`

	// FieldConfidence records the confidence of the last accepted write per
	// field, so later lower-confidence extractions cannot clobber it.
	FieldConfidence map[string]float64 `json:"field_confidence,omitempty"`

	ConversationTurns int       `json:"conversation_turns"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newTenantProfile(sessionID string, now time.Time) *TenantProfile {
	return &TenantProfile{
		SessionID:       sessionID,
		Status:          statusx.Prospect,
		Extra:           make(map[string]string),
		FieldConfidence: make(map[string]float64),
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
}

// attr returns a pointer to the structured attribute for a recognized field
// name, or nil for names that belong in Extra.
func (p *TenantProfile) attr(name string) *string {
	switch name {
	case FieldAge:
		return &p.Age
	case FieldSex:
		return &p.Sex
	case FieldOccupation:
		return &p.Occupation
	case FieldMoveInDate:
		return &p.MoveInDate
	case FieldRentalDuration:
		return &p.RentalDuration
	case FieldGuarantorStatus:
		return &p.GuarantorStatus
	case FieldGuarantorDetails:
		return &p.GuarantorDetails
	case FieldViewingInterest:
		return &p.ViewingInterest
	case FieldAvailability:
		return &p.Availability
	case FieldLanguagePreference:
		return &p.LanguagePreference
	case FieldPropertyInterest:
		return &p.PropertyInterest
	case FieldApplicationDate:
		return &p.ApplicationDate
	case FieldLeaseStartDate:
		return &p.LeaseStartDate
	case FieldLeaseEndDate:
		return &p.LeaseEndDate
	case FieldNotes:
		return &p.Notes
	}
	return nil
}

// Field returns the current value for name, looking at structured attributes
// first and the extension map second.
func (p *TenantProfile) Field(name string) (string, bool) {
	if ptr := p.attr(name); ptr != nil {
		return *ptr, *ptr != ""
	}
	v, ok := p.Extra[name]
	return v, ok
}

// setField writes value under name and reports whether name was a recognized
// structured attribute.
func (p *TenantProfile) setField(name, value string) bool {
	if ptr := p.attr(name); ptr != nil {
		*ptr = value
		return true
	}
	if p.Extra == nil {
		p.Extra = make(map[string]string)
	}
	p.Extra[name] = value
	return false
}

// MissingRequired lists the required fields still empty, in declaration order.
func (p *TenantProfile) MissingRequired() []string {
	var missing []string
	for _, name := range requiredFields {
		if v, _ := p.Field(name); v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// IsComplete reports whether every required field is filled.
func (p *TenantProfile) IsComplete() bool {
	return len(p.MissingRequired()) == 0
}

// Known returns all non-empty fields, structured and extra, as a flat map.
func (p *TenantProfile) Known() map[string]string {
	known := make(map[string]string)
	for _, name := range []string{
		FieldAge, FieldSex, FieldOccupation, FieldMoveInDate, FieldRentalDuration,
		FieldGuarantorStatus, FieldGuarantorDetails, FieldViewingInterest,
		FieldAvailability, FieldLanguagePreference, FieldPropertyInterest,
		FieldApplicationDate, FieldLeaseStartDate, FieldLeaseEndDate, FieldNotes,
	} {
		if v, ok := p.Field(name); ok && v != "" {
			known[name] = v
		}
	}
	for k, v := range p.Extra {
		if v != "" {
			known[k] = v
		}
	}
	return known
}

func (p *TenantProfile) clone() *TenantProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Extra = make(map[string]string, len(p.Extra))
	for k, v := range p.Extra {
		out.Extra[k] = v
	}
	out.FieldConfidence = make(map[string]float64, len(p.FieldConfidence))
	for k, v := range p.FieldConfidence {
		out.FieldConfidence[k] = v
	}
	return &out
}
