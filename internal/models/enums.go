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

package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ShowAs is the free/busy status of an appointment.
type ShowAs int

const (
	ShowAsFree ShowAs = iota
	ShowAsTentative
	ShowAsBusy
	ShowAsOutOfOffice
)

var showAsNames = [...]string{"free", "tentative", "busy", "oof"}

func (s ShowAs) String() string {
	if s < 0 || int(s) >= len(showAsNames) {
		return fmt.Sprintf("ShowAs(%d)", int(s))
	}
	return showAsNames[s]
}

// Confirmed reports whether the status is neither Free nor Tentative.
func (s ShowAs) Confirmed() bool {
	return s == ShowAsBusy || s == ShowAsOutOfOffice
}

// ParseShowAs maps Graph/ICS spellings onto ShowAs. Unknown values
// (including Graph's "workingElsewhere" and "unknown") count as Busy.
func ParseShowAs(v string) ShowAs {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "free":
		return ShowAsFree
	case "tentative":
		return ShowAsTentative
	case "oof", "outofoffice", "out-of-office":
		return ShowAsOutOfOffice
	default:
		return ShowAsBusy
	}
}

func (s ShowAs) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *ShowAs) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode show_as: %w", err)
	}
	*s = ParseShowAs(v)
	return nil
}

// Sensitivity is the privacy level the organiser assigned.
type Sensitivity int

const (
	SensitivityNormal Sensitivity = iota
	SensitivityPersonal
	SensitivityPrivate
	SensitivityConfidential
)

var sensitivityNames = [...]string{"normal", "personal", "private", "confidential"}

func (s Sensitivity) String() string {
	if s < 0 || int(s) >= len(sensitivityNames) {
		return fmt.Sprintf("Sensitivity(%d)", int(s))
	}
	return sensitivityNames[s]
}

// ParseSensitivity maps Graph spellings and ICS CLASS values onto Sensitivity.
func ParseSensitivity(v string) Sensitivity {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "personal":
		return SensitivityPersonal
	case "private":
		return SensitivityPrivate
	case "confidential":
		return SensitivityConfidential
	default:
		return SensitivityNormal
	}
}

func (s Sensitivity) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Sensitivity) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode sensitivity: %w", err)
	}
	*s = ParseSensitivity(v)
	return nil
}

// Importance is the organiser-assigned priority. The zero value is Normal.
type Importance int

const (
	ImportanceNormal Importance = iota
	ImportanceLow
	ImportanceHigh
)

var importanceNames = [...]string{"normal", "low", "high"}

func (i Importance) String() string {
	if i < 0 || int(i) >= len(importanceNames) {
		return fmt.Sprintf("Importance(%d)", int(i))
	}
	return importanceNames[i]
}

// Score is the tie-break weight used by overlap resolution.
func (i Importance) Score() int {
	switch i {
	case ImportanceHigh:
		return 3
	case ImportanceLow:
		return 1
	default:
		return 2
	}
}

// ParseImportance maps Graph spellings onto Importance.
func ParseImportance(v string) Importance {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return ImportanceLow
	case "high":
		return ImportanceHigh
	default:
		return ImportanceNormal
	}
}

func (i Importance) MarshalJSON() ([]byte, error) { return json.Marshal(i.String()) }

func (i *Importance) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode importance: %w", err)
	}
	*i = ParseImportance(v)
	return nil
}

// BillingType is the right half of a customer category label.
type BillingType string

const (
	Billable    BillingType = "billable"
	NonBillable BillingType = "non-billable"
)

// ParseBillingType accepts the closed set case-insensitively.
func ParseBillingType(v string) (BillingType, bool) {
	switch BillingType(strings.ToLower(strings.TrimSpace(v))) {
	case Billable:
		return Billable, true
	case NonBillable:
		return NonBillable, true
	default:
		return "", false
	}
}
