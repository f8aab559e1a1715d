// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package category parses free-text calendar category labels into a
// customer/billing pair or one of the recognised special labels.
//
// A customer label has the form "<customer> - <billing type>" with exactly
// one " - " separator. Special labels are "Online", "Admin - non-billable"
// and "Break - non-billable" (all case-insensitive).
package category

import (
	"fmt"
	"strings"

	"github.com/bcem/archiver/internal/models"
)

// Separator splits customer from billing type.
const Separator = " - "

// Kind classifies a parsed label.
type Kind int

const (
	KindInvalid Kind = iota
	KindCustomer
	KindSpecial
)

// Special identifies a recognised non-customer label.
type Special string

const (
	SpecialOnline Special = "online"
	SpecialAdmin  Special = "admin - non-billable"
	SpecialBreak  Special = "break - non-billable"
)

// Invalid reasons.
const (
	ReasonMissingSeparator   = "missing separator"
	ReasonAmbiguousSeparator = "ambiguous separator"
	ReasonEmptyCustomer      = "empty customer name"
	ReasonUnknownBillingType = "unknown billing type"
)

var specials = map[string]Special{
	string(SpecialOnline): SpecialOnline,
	string(SpecialAdmin):  SpecialAdmin,
	string(SpecialBreak):  SpecialBreak,
}

// Label is the outcome of parsing a single category label.
type Label struct {
	Raw         string
	Kind        Kind
	Customer    string
	BillingType models.BillingType
	Special     Special
	Reason      string
}

// Parse classifies a single label.
func Parse(label string) Label {
	out := Label{Raw: label}
	trimmed := strings.TrimSpace(label)

	if sp, ok := specials[normalizeSpecial(trimmed)]; ok {
		out.Kind = KindSpecial
		out.Special = sp
		return out
	}

	// The raw label is split so that " - billable" reports an empty customer
	// instead of a missing separator.
	switch n := strings.Count(label, Separator); {
	case n == 0:
		out.Reason = ReasonMissingSeparator
		return out
	case n > 1:
		out.Reason = ReasonAmbiguousSeparator
		return out
	}

	left, right, _ := strings.Cut(label, Separator)
	customer := strings.TrimSpace(left)
	if customer == "" {
		out.Reason = ReasonEmptyCustomer
		return out
	}

	bt, ok := models.ParseBillingType(right)
	if !ok {
		out.Reason = ReasonUnknownBillingType
		return out
	}

	out.Kind = KindCustomer
	out.Customer = customer
	out.BillingType = bt
	return out
}

// normalizeSpecial lowercases and collapses runs of whitespace, so
// "Admin  -  Non-Billable" still matches but "admin-non-billable" does not.
func normalizeSpecial(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Result is the combined classification of every label on an appointment.
type Result struct {
	Customer    string
	BillingType models.BillingType
	IsSpecial   bool
	// HasCustomerLabel is true when at least one label parsed to a customer
	// pair, even if the appointment ended up unresolved.
	HasCustomerLabel bool
	IsValid          bool
	Labels           []Label
	Issues           []models.Issue
}

// ParseAll applies Parse to every category on the appointment. More than one
// distinct customer pair leaves the appointment unresolved.
func ParseAll(appt models.Appointment) Result {
	res := Result{Labels: make([]Label, 0, len(appt.Categories))}

	var pairs []Label
	seen := make(map[string]bool)

	for _, raw := range appt.Categories {
		l := Parse(raw)
		res.Labels = append(res.Labels, l)

		switch l.Kind {
		case KindSpecial:
			res.IsSpecial = true
		case KindCustomer:
			res.HasCustomerLabel = true
			key := strings.ToLower(l.Customer) + "|" + string(l.BillingType)
			if !seen[key] {
				seen[key] = true
				pairs = append(pairs, l)
			}
		default:
			res.Issues = append(res.Issues, models.Issue{
				SourceID: appt.ID,
				Kind:     models.IssueInvalidCategory,
				Message:  fmt.Sprintf("category %q: %s", raw, l.Reason),
			})
		}
	}

	switch len(pairs) {
	case 0:
	case 1:
		res.Customer = pairs[0].Customer
		res.BillingType = pairs[0].BillingType
	default:
		names := make([]string, 0, len(pairs))
		for _, p := range pairs {
			names = append(names, p.Raw)
		}
		res.Issues = append(res.Issues, models.Issue{
			SourceID: appt.ID,
			Kind:     models.IssueMultipleCustomerCategories,
			Message:  fmt.Sprintf("multiple customer categories: %s", strings.Join(names, ", ")),
		})
	}

	res.IsValid = len(res.Issues) == 0
	return res
}

// Apply writes the derived classification fields onto a copy of appt.
func (r Result) Apply(appt models.Appointment) models.Appointment {
	appt.Customer = r.Customer
	appt.BillingType = r.BillingType
	appt.IsSpecialCategory = r.IsSpecial
	return appt
}
