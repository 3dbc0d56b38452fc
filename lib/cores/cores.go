// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package cores

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CoreID identifies a single CPU core by its OS index.
type CoreID int

// Set is an ordered set of distinct core identifiers. The zero value
// is an empty set, which fails launch validation.
type Set struct {
	// IDs is sorted ascending and contains no duplicates.
	IDs []CoreID
}

// Contains reports whether id is in the set.
func (s Set) Contains(id CoreID) bool {
	for _, existing := range s.IDs {
		if existing == id {
			return true
		}
	}
	return false
}

// Len returns the number of cores in the set.
func (s Set) Len() int { return len(s.IDs) }

// String renders the set in the compact command-line form, collapsing
// consecutive runs into ranges ("0-3,6").
func (s Set) String() string {
	if len(s.IDs) == 0 {
		return "(empty)"
	}
	var parts []string
	for start := 0; start < len(s.IDs); {
		end := start
		for end+1 < len(s.IDs) && s.IDs[end+1] == s.IDs[end]+1 {
			end++
		}
		if end == start {
			parts = append(parts, strconv.Itoa(int(s.IDs[start])))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", s.IDs[start], s.IDs[end]))
		}
		start = end + 1
	}
	return strings.Join(parts, ",")
}

// FromIDs builds a Set from raw ids, sorting and deduplicating.
func FromIDs(ids []CoreID) Set {
	seen := make(map[CoreID]bool, len(ids))
	var distinct []CoreID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}
	sort.Slice(distinct, func(i, j int) bool { return distinct[i] < distinct[j] })
	return Set{IDs: distinct}
}

// Parse interprets a command-line core specification. Accepted forms:
//
//	"all"        every core reported by Available
//	"2"          a single core
//	"0,2,5"      a comma list
//	"0-3"        an inclusive range
//	"0-3,6,8-9"  any combination
//
// An empty spec, a malformed entry, a reversed range, or a negative id
// is an error. The result is sorted and deduplicated.
func Parse(spec string) (Set, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return Set{}, fmt.Errorf("empty core specification")
	}

	if strings.EqualFold(trimmed, "all") {
		available, err := Available()
		if err != nil {
			return Set{}, fmt.Errorf("enumerating cores for %q: %w", spec, err)
		}
		return FromIDs(available), nil
	}

	var ids []CoreID
	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return Set{}, fmt.Errorf("empty entry in core specification %q", spec)
		}
		if low, high, found := strings.Cut(entry, "-"); found {
			start, err := parseID(low)
			if err != nil {
				return Set{}, fmt.Errorf("range start in %q: %w", entry, err)
			}
			end, err := parseID(high)
			if err != nil {
				return Set{}, fmt.Errorf("range end in %q: %w", entry, err)
			}
			if end < start {
				return Set{}, fmt.Errorf("reversed range %q", entry)
			}
			for id := start; id <= end; id++ {
				ids = append(ids, id)
			}
			continue
		}
		id, err := parseID(entry)
		if err != nil {
			return Set{}, err
		}
		ids = append(ids, id)
	}

	return FromIDs(ids), nil
}

// denseRange returns the ids 0..n-1.
func denseRange(n int) []CoreID {
	ids := make([]CoreID, n)
	for i := range ids {
		ids[i] = CoreID(i)
	}
	return ids
}

func parseID(text string) (CoreID, error) {
	value, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("invalid core id %q", text)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative core id %d", value)
	}
	return CoreID(value), nil
}
