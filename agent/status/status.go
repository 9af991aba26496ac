package status

import (
	"errors"
	"fmt"
)

// TenantStatus is the closed set of lifecycle states a tenant moves through,
// from first inquiry to an ended tenancy. The string values are the wire
// surface shared with dashboards and storage schemas and must not change.
type TenantStatus string

const (
	Prospect             TenantStatus = "prospect"
	Qualified            TenantStatus = "qualified"
	ViewingScheduled     TenantStatus = "viewing_scheduled"
	ApplicationSubmitted TenantStatus = "application_submitted"
	Approved             TenantStatus = "approved"
	ActiveTenant         TenantStatus = "active_tenant"
	FormerTenant         TenantStatus = "former_tenant"
	Rejected             TenantStatus = "rejected"
	Withdrawn            TenantStatus = "withdrawn"
)

var (
	ErrUnknownStatus     = errors.New("unknown tenant status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var all = []TenantStatus{
	Prospect,
	Qualified,
	ViewingScheduled,
	ApplicationSubmitted,
	Approved,
	ActiveTenant,
	FormerTenant,
	Rejected,
	Withdrawn,
}

var displayNames = map[TenantStatus]string{
	Prospect:             "Prospect",
	Qualified:            "Qualified",
	ViewingScheduled:     "Viewing Scheduled",
	ApplicationSubmitted: "Application Submitted",
	Approved:             "Approved",
	ActiveTenant:         "Active Tenant",
	FormerTenant:         "Former Tenant",
	Rejected:             "Rejected",
	Withdrawn:            "Withdrawn",
}

var descriptions = map[TenantStatus]string{
	Prospect:             "Initial inquiry, incomplete profile",
	Qualified:            "Complete profile, ready for viewing",
	ViewingScheduled:     "Viewing arranged",
	ApplicationSubmitted: "Rental application submitted",
	Approved:             "Application approved",
	ActiveTenant:         "Currently renting",
	FormerTenant:         "Past tenant",
	Rejected:             "Application rejected",
	Withdrawn:            "Prospect withdrew interest",
}

// transitions encodes the forward-only lifecycle graph. A status missing from
// the map is terminal.
var transitions = map[TenantStatus][]TenantStatus{
	Prospect:             {Qualified, Withdrawn, Rejected},
	Qualified:            {ViewingScheduled, Withdrawn, Rejected},
	ViewingScheduled:     {ApplicationSubmitted, Withdrawn, Rejected},
	ApplicationSubmitted: {Approved, Rejected, Withdrawn},
	Approved:             {ActiveTenant, Withdrawn},
	ActiveTenant:         {FormerTenant},
}

// All returns every defined status in lifecycle order.
func All() []TenantStatus {
	out := make([]TenantStatus, len(all))
	copy(out, all)
	return out
}

// IsValid reports whether candidate is one of the nine defined statuses.
func IsValid(candidate TenantStatus) bool {
	_, ok := displayNames[candidate]
	return ok
}

// DisplayName returns the human-readable name for a status.
func DisplayName(s TenantStatus) (string, error) {
	name, ok := displayNames[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return name, nil
}

// Description returns the short operator-facing description for a status.
func Description(s TenantStatus) (string, error) {
	desc, ok := descriptions[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return desc, nil
}

// AllowedNext returns the set of statuses current may transition into.
// Terminal statuses return an empty slice.
func AllowedNext(current TenantStatus) ([]TenantStatus, error) {
	if !IsValid(current) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, current)
	}
	next := transitions[current]
	out := make([]TenantStatus, len(next))
	copy(out, next)
	return out, nil
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s TenantStatus) bool {
	return IsValid(s) && len(transitions[s]) == 0
}

// Transition validates a requested status change and returns the new status.
// It never clamps: a request outside the allowed set fails with
// ErrInvalidTransition.
func Transition(current, requested TenantStatus) (TenantStatus, error) {
	allowed, err := AllowedNext(current)
	if err != nil {
		return "", err
	}
	if !IsValid(requested) {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, requested)
	}
	for _, s := range allowed {
		if s == requested {
			return requested, nil
		}
	}
	return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, requested)
}
