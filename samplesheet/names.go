// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package samplesheet

import "sort"

// NameSet is a set of sample names.  The set operations never modify their
// operands.
type NameSet map[SampleName]struct{}

// NewNameSet returns the set of names.
func NewNameSet(names ...SampleName) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts name into s.
func (s NameSet) Add(name SampleName) { s[name] = struct{}{} }

// Contains reports whether name is in s.
func (s NameSet) Contains(name SampleName) bool {
	_, ok := s[name]
	return ok
}

// Intersect returns the names in both s and other.
func (s NameSet) Intersect(other NameSet) NameSet {
	out := make(NameSet)
	for n := range s {
		if other.Contains(n) {
			out.Add(n)
		}
	}
	return out
}

// Union returns the names in s or other.
func (s NameSet) Union(other NameSet) NameSet {
	out := make(NameSet, len(s)+len(other))
	for n := range s {
		out.Add(n)
	}
	for n := range other {
		out.Add(n)
	}
	return out
}

// Difference returns the names in s but not in other.
func (s NameSet) Difference(other NameSet) NameSet {
	out := make(NameSet)
	for n := range s {
		if !other.Contains(n) {
			out.Add(n)
		}
	}
	return out
}

// Sorted returns the names in s in lexical order.
func (s NameSet) Sorted() []SampleName {
	names := make([]SampleName, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
