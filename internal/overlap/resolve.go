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

package overlap

import (
	"sort"

	"github.com/bcem/archiver/internal/models"
)

// OutcomeKind is the terminal state of resolving one group.
type OutcomeKind int

const (
	// NoConflict means every member was Free; nothing competes.
	NoConflict OutcomeKind = iota
	// Resolved means exactly one member survived the tie-break stages.
	Resolved
	// Conflict means several members tie on every signal.
	Conflict
)

func (k OutcomeKind) String() string {
	switch k {
	case NoConflict:
		return "no_conflict"
	case Resolved:
		return "resolved"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Stage names the rule that ended resolution.
type Stage string

const (
	StageFree       Stage = "free"
	StageTentative  Stage = "tentative"
	StageImportance Stage = "importance"
)

// Outcome is the result of Resolve.
type Outcome struct {
	Kind  OutcomeKind
	Stage Stage
	Group Group

	// Winner is set for Resolved. Its Supersedes lists the dropped members.
	Winner models.Appointment
	// Candidates are the tied survivors of a Conflict.
	Candidates []models.Appointment
	// Dropped are members discarded on the way to a Resolved winner.
	Dropped []models.Appointment
}

// Archive returns the appointments this outcome releases to the archive:
// the winner when resolved, every member when all were Free, nothing for a
// conflict.
func (o Outcome) Archive() []models.Appointment {
	switch o.Kind {
	case Resolved:
		return []models.Appointment{o.Winner}
	case NoConflict:
		return o.Group
	default:
		return nil
	}
}

// AsConflict renders a Conflict outcome as the record sent to review.
func (o Outcome) AsConflict() models.Conflict {
	return models.Conflict{Members: o.Group, Candidates: o.Candidates}
}

// Resolve applies, in order, the Free filter, the Tentative-versus-confirmed
// filter and the importance tie-break. Each stage only runs while more than
// one candidate remains. The group is not modified.
func Resolve(g Group) Outcome {
	out := Outcome{Group: g}

	remaining, dropped := split(g, func(a models.Appointment) bool {
		return a.ShowAs != models.ShowAsFree
	})
	out.Stage = StageFree
	switch len(remaining) {
	case 0:
		out.Kind = NoConflict
		return out
	case 1:
		return resolved(out, remaining[0], dropped)
	}

	if mixed(remaining) {
		var tentative []models.Appointment
		remaining, tentative = split(remaining, func(a models.Appointment) bool {
			return a.ShowAs != models.ShowAsTentative
		})
		dropped = append(dropped, tentative...)
		out.Stage = StageTentative
		if len(remaining) == 1 {
			return resolved(out, remaining[0], dropped)
		}
	}

	best := 0
	for _, a := range remaining {
		if s := a.Importance.Score(); s > best {
			best = s
		}
	}
	top, lower := split(remaining, func(a models.Appointment) bool {
		return a.Importance.Score() == best
	})
	dropped = append(dropped, lower...)
	out.Stage = StageImportance
	if len(top) == 1 {
		return resolved(out, top[0], dropped)
	}

	out.Kind = Conflict
	out.Candidates = top
	return out
}

// ResolveAll resolves an overlap group whose members may only be connected
// through Free appointments. Free members never compete, so the others are
// regrouped by direct overlap and each component is resolved on its own. A
// Free member travels with the first component (by start) it overlaps and is
// dropped there; Free members that overlap no other show-as are released
// together as one NoConflict outcome. Outcomes are ordered by their earliest
// member.
func ResolveAll(g Group) []Outcome {
	busy, free := split(g, func(a models.Appointment) bool {
		return a.ShowAs != models.ShowAsFree
	})
	if len(busy) == 0 {
		return []Outcome{{Kind: NoConflict, Stage: StageFree, Group: g}}
	}

	groups, singles := Partition(busy)
	components := make([]Group, 0, len(groups)+len(singles))
	components = append(components, groups...)
	for _, a := range singles {
		components = append(components, Group{a})
	}
	sort.SliceStable(components, func(i, j int) bool {
		return components[i][0].Start.Before(components[j][0].Start)
	})

	var freeOnly Group
	for _, f := range free {
		attached := false
		for i, c := range components {
			if overlapsAny(f, c) {
				components[i] = append(components[i], f)
				attached = true
				break
			}
		}
		if !attached {
			freeOnly = append(freeOnly, f)
		}
	}

	outcomes := make([]Outcome, 0, len(components)+1)
	for _, c := range components {
		models.SortByStart(c)
		outcomes = append(outcomes, Resolve(c))
	}
	if len(freeOnly) > 0 {
		outcomes = append(outcomes, Outcome{Kind: NoConflict, Stage: StageFree, Group: freeOnly})
	}
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Group[0].Start.Before(outcomes[j].Group[0].Start)
	})
	return outcomes
}

func overlapsAny(a models.Appointment, g Group) bool {
	for _, b := range g {
		if Overlaps(a, b) {
			return true
		}
	}
	return false
}

func resolved(out Outcome, winner models.Appointment, dropped []models.Appointment) Outcome {
	w := winner.Clone()
	w.Supersedes = append(w.Supersedes, models.IDs(dropped)...)
	out.Kind = Resolved
	out.Winner = w
	out.Dropped = dropped
	return out
}

// mixed reports whether some but not all members are Tentative.
func mixed(appts []models.Appointment) bool {
	var tentative int
	for _, a := range appts {
		if a.ShowAs == models.ShowAsTentative {
			tentative++
		}
	}
	return tentative > 0 && tentative < len(appts)
}

func split(appts []models.Appointment, keep func(models.Appointment) bool) (kept, rest []models.Appointment) {
	for _, a := range appts {
		if keep(a) {
			kept = append(kept, a)
		} else {
			rest = append(rest, a)
		}
	}
	return kept, rest
}
