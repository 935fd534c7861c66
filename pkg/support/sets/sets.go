// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets implement a set type as a `map[T]struct{}`, and a counted set (multiset) as a
// `map[T]int`, but with better ergonomics.
package sets

// Set implements a Set for the key type T.
type Set[T comparable] map[T]struct{}

// Make returns an empty Set of the given type. Size is optional, and if given
// will reserve the expected size.
func Make[T comparable](size ...int) Set[T] {
	if len(size) == 0 {
		return make(Set[T])
	}
	return make(Set[T], size[0])
}

// MakeWith creates a Set[T] with the given elements inserted.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := Make[T](len(elements))
	s.Insert(elements...)
	return s
}

// Has returns true if Set s has the given key.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert keys into set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Remove keys from the set. Keys not in the set are ignored.
func (s Set[T]) Remove(keys ...T) {
	for _, key := range keys {
		delete(s, key)
	}
}

// Counted is a set where each key can be inserted more than once: it is only removed from the set
// once it has been removed as many times as it was inserted.
type Counted[T comparable] map[T]int

// MakeCounted returns an empty Counted set.
func MakeCounted[T comparable]() Counted[T] {
	return make(Counted[T])
}

// Has returns true if the key was inserted more times than removed.
func (c Counted[T]) Has(key T) bool {
	return c[key] > 0
}

// Count returns the number of times the key is currently in the set.
func (c Counted[T]) Count(key T) int {
	return c[key]
}

// Insert keys, once each.
func (c Counted[T]) Insert(keys ...T) {
	for _, key := range keys {
		c[key]++
	}
}

// Remove keys, once each. Removing a key not in the set is a no-op.
func (c Counted[T]) Remove(keys ...T) {
	for _, key := range keys {
		count := c[key]
		if count <= 1 {
			delete(c, key)
			continue
		}
		c[key] = count - 1
	}
}

// Keys returns the distinct keys as a Set.
func (c Counted[T]) Keys() Set[T] {
	s := Make[T](len(c))
	for key := range c {
		s.Insert(key)
	}
	return s
}
