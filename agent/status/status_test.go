package status

import (
	"errors"
	"testing"
)

func TestIsValid(t *testing.T) {
	t.Parallel()

	for _, s := range All() {
		if !IsValid(s) {
			t.Fatalf("IsValid(%q) = false, want true", s)
		}
	}
	if IsValid("tenant") {
		t.Fatal(`IsValid("tenant") = true, want false`)
	}
	if IsValid("") {
		t.Fatal(`IsValid("") = true, want false`)
	}
}

func TestDisplayNameAndDescription(t *testing.T) {
	t.Parallel()

	name, err := DisplayName(ViewingScheduled)
	if err != nil {
		t.Fatalf("DisplayName() error = %v", err)
	}
	if name != "Viewing Scheduled" {
		t.Fatalf("DisplayName() = %q", name)
	}

	desc, err := Description(Qualified)
	if err != nil {
		t.Fatalf("Description() error = %v", err)
	}
	if desc != "Complete profile, ready for viewing" {
		t.Fatalf("Description() = %q", desc)
	}

	if _, err := DisplayName("bogus"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("DisplayName(bogus) error = %v, want ErrUnknownStatus", err)
	}
	if _, err := Description("bogus"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("Description(bogus) error = %v, want ErrUnknownStatus", err)
	}
}

func TestAllowedNext(t *testing.T) {
	t.Parallel()

	cases := []struct {
		current TenantStatus
		want    []TenantStatus
	}{
		{Prospect, []TenantStatus{Qualified, Withdrawn, Rejected}},
		{Qualified, []TenantStatus{ViewingScheduled, Withdrawn, Rejected}},
		{ViewingScheduled, []TenantStatus{ApplicationSubmitted, Withdrawn, Rejected}},
		{ApplicationSubmitted, []TenantStatus{Approved, Rejected, Withdrawn}},
		{Approved, []TenantStatus{ActiveTenant, Withdrawn}},
		{ActiveTenant, []TenantStatus{FormerTenant}},
		{FormerTenant, nil},
		{Rejected, nil},
		{Withdrawn, nil},
	}

	for _, tc := range cases {
		got, err := AllowedNext(tc.current)
		if err != nil {
			t.Fatalf("AllowedNext(%s) error = %v", tc.current, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("AllowedNext(%s) = %v, want %v", tc.current, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("AllowedNext(%s)[%d] = %s, want %s", tc.current, i, got[i], tc.want[i])
			}
		}
	}

	if _, err := AllowedNext("bogus"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("AllowedNext(bogus) error = %v, want ErrUnknownStatus", err)
	}
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []TenantStatus{FormerTenant, Rejected, Withdrawn} {
		if !IsTerminal(s) {
			t.Fatalf("IsTerminal(%s) = false, want true", s)
		}
	}
	for _, s := range []TenantStatus{Prospect, Qualified, ActiveTenant} {
		if IsTerminal(s) {
			t.Fatalf("IsTerminal(%s) = true, want false", s)
		}
	}
	if IsTerminal("bogus") {
		t.Fatal("IsTerminal(bogus) = true, want false")
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()

	got, err := Transition(Prospect, Qualified)
	if err != nil {
		t.Fatalf("Transition(prospect, qualified) error = %v", err)
	}
	if got != Qualified {
		t.Fatalf("Transition() = %s, want %s", got, Qualified)
	}

	if _, err := Transition(FormerTenant, Prospect); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition(former_tenant, prospect) error = %v, want ErrInvalidTransition", err)
	}
	if _, err := Transition(Prospect, ActiveTenant); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition(prospect, active_tenant) error = %v, want ErrInvalidTransition", err)
	}
	if _, err := Transition("bogus", Qualified); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("Transition(bogus, qualified) error = %v, want ErrUnknownStatus", err)
	}
	if _, err := Transition(Prospect, "bogus"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("Transition(prospect, bogus) error = %v, want ErrUnknownStatus", err)
	}
}
