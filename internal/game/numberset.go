package game

import (
	"encoding/json"
	"sort"
)

// NumberSet is a set of drawn/marked ball numbers. On the wire it is a plain
// sorted array, because JSON has no native set form.
type NumberSet map[int]struct{}

func NewNumberSet(nums ...int) NumberSet {
	s := make(NumberSet, len(nums))
	for _, n := range nums {
		s[n] = struct{}{}
	}
	return s
}

func (s NumberSet) Has(n int) bool {
	_, ok := s[n]
	return ok
}

func (s NumberSet) Add(n int)    { s[n] = struct{}{} }
func (s NumberSet) Remove(n int) { delete(s, n) }

// Toggle flips membership and reports whether n is now in the set.
func (s NumberSet) Toggle(n int) bool {
	if s.Has(n) {
		delete(s, n)
		return false
	}
	s[n] = struct{}{}
	return true
}

func (s NumberSet) Clone() NumberSet {
	out := make(NumberSet, len(s))
	for n := range s {
		out[n] = struct{}{}
	}
	return out
}

// Sorted returns the members as an ascending slice.
func (s NumberSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (s NumberSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *NumberSet) UnmarshalJSON(data []byte) error {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return err
	}
	*s = NewNumberSet(nums...)
	return nil
}
