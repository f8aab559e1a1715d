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

// Package privacy decides whether an appointment is personal and should be
// flagged non-shareable in the archive.
package privacy

import (
	"github.com/bcem/archiver/internal/category"
	"github.com/bcem/archiver/internal/models"
)

// ShouldMarkPrivate is true when no category on the appointment parses to a
// customer pair. Special labels do not count as customers.
func ShouldMarkPrivate(appt models.Appointment) bool {
	return personal(category.ParseAll(appt))
}

func personal(cats category.Result) bool {
	return !cats.HasCustomerLabel
}

// Apply takes the already-parsed categories of appt and returns appt with
// IsPrivate set and whether the classifier upgraded it. Appointments whose
// sensitivity is already above Normal are private as they are and never
// count as changed; nothing is ever downgraded.
func Apply(appt models.Appointment, cats category.Result) (models.Appointment, bool) {
	if appt.Sensitivity != models.SensitivityNormal {
		appt.IsPrivate = true
		return appt, false
	}
	if appt.IsPrivate || !personal(cats) {
		return appt, false
	}
	appt.IsPrivate = true
	return appt, true
}
