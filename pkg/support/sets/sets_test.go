// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := Make[int](10)
	assert.Len(t, s, 0)

	// Check inserting and recovery.
	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := MakeWith(5, 7)
	assert.Len(t, s2, 2)
	assert.True(t, s2.Has(5))
	assert.False(t, s2.Has(3))

	s.Remove(7, 11)
	assert.Len(t, s, 1)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(7))
}

func TestCounted(t *testing.T) {
	c := MakeCounted[string]()
	c.Insert("a", "b", "a")
	assert.Equal(t, 2, c.Count("a"))
	assert.True(t, c.Has("b"))
	assert.Equal(t, MakeWith("a", "b"), c.Keys())

	c.Remove("a", "b")
	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("b"))
	assert.Len(t, c, 1)

	c.Remove("a", "missing")
	assert.False(t, c.Has("a"))
	assert.Len(t, c, 0)
}
