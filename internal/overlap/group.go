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

// Package overlap groups time-intersecting appointments and picks a single
// winner per group where the show-as and importance signals allow it.
package overlap

import (
	"github.com/bcem/archiver/internal/models"
)

// Group is a maximal set of two or more appointments connected by pairwise
// overlap, ordered by start.
type Group []models.Appointment

// Overlaps reports whether the half-open intervals [Start, End) intersect.
func Overlaps(a, b models.Appointment) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// BuildGroups returns the overlap groups of appts, ordered by their earliest
// member. Appointments that overlap nothing are not part of any group.
func BuildGroups(appts []models.Appointment) []Group {
	groups, _ := Partition(appts)
	return groups
}

// Partition splits appts into overlap groups and the appointments that
// overlap nothing. Both outputs are ordered by start; appts is not modified.
func Partition(appts []models.Appointment) ([]Group, []models.Appointment) {
	sorted := make([]models.Appointment, len(appts))
	for i, a := range appts {
		sorted[i] = a.Clone()
	}
	models.SortByStart(sorted)

	uf := newUnionFind(len(sorted))
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			// Later entries start no earlier, so none of them can reach back
			// into sorted[i] once one starts at or after its end.
			if !sorted[j].Start.Before(sorted[i].End) {
				break
			}
			if Overlaps(sorted[i], sorted[j]) {
				uf.union(i, j)
			}
		}
	}

	byRoot := make(map[int]int)
	var components [][]models.Appointment
	for i, a := range sorted {
		r := uf.find(i)
		idx, ok := byRoot[r]
		if !ok {
			idx = len(components)
			byRoot[r] = idx
			components = append(components, nil)
		}
		components[idx] = append(components[idx], a)
	}

	var groups []Group
	var singles []models.Appointment
	for _, c := range components {
		if len(c) == 1 {
			singles = append(singles, c[0])
			continue
		}
		groups = append(groups, Group(c))
	}
	return groups, singles
}

// IDs returns the member identifiers in order.
func (g Group) IDs() []string {
	return models.IDs(g)
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
