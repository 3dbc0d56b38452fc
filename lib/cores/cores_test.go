// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package cores

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		spec string
		want []CoreID
	}{
		{"0", []CoreID{0}},
		{"3", []CoreID{3}},
		{"0,2,5", []CoreID{0, 2, 5}},
		{"0-3", []CoreID{0, 1, 2, 3}},
		{"0-2,6,8-9", []CoreID{0, 1, 2, 6, 8, 9}},
		{"5,1,3", []CoreID{1, 3, 5}},      // sorted
		{"1,1,2-3,3", []CoreID{1, 2, 3}},  // deduplicated
		{" 0 , 2 ", []CoreID{0, 2}},       // whitespace tolerated
	}

	for _, test := range tests {
		t.Run(test.spec, func(t *testing.T) {
			got, err := Parse(test.spec)
			if err != nil {
				t.Fatalf("Parse(%q): %v", test.spec, err)
			}
			if !reflect.DeepEqual(got.IDs, test.want) {
				t.Errorf("Parse(%q) = %v, want %v", test.spec, got.IDs, test.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	specs := []string{
		"",
		"  ",
		"a",
		"1,,2",
		"3-1",
		"-1",
		"1-",
		"0,x",
	}
	for _, spec := range specs {
		if _, err := Parse(spec); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", spec)
		}
	}
}

func TestParseAll(t *testing.T) {
	set, err := Parse("all")
	if err != nil {
		t.Fatalf("Parse(all): %v", err)
	}
	if set.Len() == 0 {
		t.Error("Parse(all) returned an empty set")
	}
	for i := 1; i < len(set.IDs); i++ {
		if set.IDs[i] <= set.IDs[i-1] {
			t.Errorf("Parse(all) not strictly increasing at %d: %v", i, set.IDs)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		ids  []CoreID
		want string
	}{
		{nil, "(empty)"},
		{[]CoreID{4}, "4"},
		{[]CoreID{0, 1, 2, 3}, "0-3"},
		{[]CoreID{0, 1, 2, 6, 8, 9}, "0-2,6,8-9"},
	}
	for _, test := range tests {
		got := Set{IDs: test.ids}.String()
		if got != test.want {
			t.Errorf("String(%v) = %q, want %q", test.ids, got, test.want)
		}
	}
}

func TestContains(t *testing.T) {
	set := FromIDs([]CoreID{0, 2, 5})
	if !set.Contains(2) {
		t.Error("Contains(2) = false, want true")
	}
	if set.Contains(3) {
		t.Error("Contains(3) = true, want false")
	}
}
