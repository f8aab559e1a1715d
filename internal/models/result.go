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
	"fmt"
	"strings"
	"time"
)

// IssueKind enumerates the recoverable problems a run can report.
type IssueKind string

const (
	IssueInvalidCategory            IssueKind = "InvalidCategory"
	IssueMultipleCustomerCategories IssueKind = "MultipleCustomerCategories"
	IssueOrphanedModification       IssueKind = "OrphanedModification"
	IssueInvertedInterval           IssueKind = "InvertedInterval"
	IssueUnresolvedOverlap          IssueKind = "UnresolvedOverlap"
)

// Issue is a single review record for a human.
type Issue struct {
	SourceID string    `json:"source_id"`
	Kind     IssueKind `json:"kind"`
	Message  string    `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s [%s]: %s", i.SourceID, i.Kind, i.Message)
}

// ModificationType is the closed set of edits a modification appointment
// can represent. ModificationNone means the subject carries no annotation.
type ModificationType int

const (
	ModificationNone ModificationType = iota
	ModificationExtension
	ModificationShortened
	ModificationEarlyStart
	ModificationLateStart
)

func (t ModificationType) String() string {
	switch t {
	case ModificationExtension:
		return "extension"
	case ModificationShortened:
		return "shortened"
	case ModificationEarlyStart:
		return "early start"
	case ModificationLateStart:
		return "late start"
	default:
		return "none"
	}
}

// ModificationRecord pairs an applied modification with its original.
// Delta is signed: positive lengthens or moves later.
type ModificationRecord struct {
	ModificationID string           `json:"modification_id"`
	OriginalID     string           `json:"original_id"`
	Type           ModificationType `json:"type"`
	Delta          time.Duration    `json:"delta"`
}

// Conflict is an overlap group that could not be resolved automatically.
// Members is the whole group; Candidates are the tied survivors.
type Conflict struct {
	Members    []Appointment `json:"members"`
	Candidates []Appointment `json:"candidates"`
}

// Issue renders the conflict as an UnresolvedOverlap review record keyed on
// the earliest tied candidate.
func (c Conflict) Issue() Issue {
	var source string
	switch {
	case len(c.Candidates) > 0:
		source = c.Candidates[0].ID
	case len(c.Members) > 0:
		source = c.Members[0].ID
	}
	return Issue{
		SourceID: source,
		Kind:     IssueUnresolvedOverlap,
		Message: fmt.Sprintf("%d overlapping appointments tie on show-as and importance: %s",
			len(c.Candidates), strings.Join(IDs(c.Candidates), ", ")),
	}
}

// PipelineResult is the output of one archive run. MarkedPrivate lists the
// archived appointments the privacy classifier flipped to private.
type PipelineResult struct {
	Archived      []Appointment        `json:"archived"`
	Conflicts     []Conflict           `json:"conflicts"`
	Issues        []Issue              `json:"issues"`
	Modifications []ModificationRecord `json:"modifications"`
	MarkedPrivate []string             `json:"marked_private"`
}

// ReviewItems returns issues followed by one UnresolvedOverlap record per
// conflict, the shape the review sink accepts.
func (r PipelineResult) ReviewItems() []Issue {
	out := make([]Issue, 0, len(r.Issues)+len(r.Conflicts))
	out = append(out, r.Issues...)
	for _, c := range r.Conflicts {
		out = append(out, c.Issue())
	}
	return out
}
