package rplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopLeavesPendingLengthUnchanged(t *testing.T) {
	p := New()
	q := p.Push(nil, "example.com", 1, 1)
	require.NotNil(t, q)
	assert.Len(t, p.pending, 1)
	assert.Len(t, p.resolved, 0)

	p.Pop(q)
	assert.Len(t, p.pending, 0, "pop should remove from pending")
	require.Len(t, p.resolved, 1, "pop should append exactly one to resolved")
	assert.Same(t, q, p.resolved[0])
}

func TestCurrentIsTopOfPending(t *testing.T) {
	p := New()
	assert.Nil(t, p.Current(), "empty plan has no current query")

	first := p.Push(nil, "com", 1, 2)
	assert.Same(t, first, p.Current())

	second := p.Push(first, "example.com", 1, 2)
	assert.Same(t, second, p.Current(), "most recently pushed child is current")
}

func TestEmpty(t *testing.T) {
	p := New()
	assert.True(t, p.Empty())

	q := p.Push(nil, "example.com", 1, 1)
	assert.False(t, p.Empty())

	p.Pop(q)
	assert.True(t, p.Empty())
}

func TestResolvedReturnsTail(t *testing.T) {
	p := New()
	assert.Nil(t, p.Resolved())

	q1 := p.Push(nil, "a.example.com", 1, 1)
	q2 := p.Push(nil, "b.example.com", 1, 1)
	p.Pop(q1)
	assert.Same(t, q1, p.Resolved())

	p.Pop(q2)
	assert.Same(t, q2, p.Resolved())
}

func TestSatisfiesFindsAncestor(t *testing.T) {
	root := &Query{SName: "example.com", SClass: 1, SType: 2}
	child := &Query{SName: "ns1.example.com", SClass: 1, SType: 1, Parent: root}
	grandchild := &Query{SName: "ns1.example.com", SClass: 1, SType: 28, Parent: child}

	assert.True(t, Satisfies(grandchild, "example.com", 1, 2), "root ancestor should satisfy")
	assert.True(t, Satisfies(grandchild, "ns1.example.com", 1, 1), "direct parent should satisfy")
	assert.True(t, Satisfies(grandchild, "ns1.example.com", 1, 28), "closure itself is included")
	assert.False(t, Satisfies(grandchild, "other.example.com", 1, 1), "unrelated name never satisfies")
}

func TestSatisfiesDetectsCycle(t *testing.T) {
	// Resolving A of an NS whose A is the very thing being resolved.
	p := New()
	outer := p.Push(nil, "example.com", 1, 1) // A example.com
	nsLookup := p.Push(outer, "ns1.example.com", 1, 2)
	addrLookup := p.Push(nsLookup, "ns1.example.com", 1, 1) // A ns1.example.com, nested under the NS lookup

	assert.True(t, Satisfies(addrLookup.Parent, "ns1.example.com", 1, 2))
	assert.False(t, Satisfies(outer, "ns1.example.com", 1, 1), "outer has no ns1 ancestor yet")
}

func TestPushInheritsFlagsMinusTransient(t *testing.T) {
	p := New()
	parent := p.Push(nil, "example.com", 1, 1)
	parent.Flags |= FlagTCP | FlagResolved | FlagAwaitAddr

	child := p.Push(parent, "ns1.example.com", 1, 1)
	assert.True(t, child.Flags&FlagTCP != 0, "durable flags propagate to children")
	assert.False(t, child.Flags&FlagResolved != 0, "resolved is not inherited")
	assert.False(t, child.Flags&FlagAwaitAddr != 0, "await-addr is not inherited")
}

func TestProvides(t *testing.T) {
	q := &Query{SName: "example.com", SClass: 1, SType: 1}
	assert.True(t, q.Provides("example.com", 1, 1))
	assert.False(t, q.Provides("example.com", 1, 28))
	assert.False(t, (*Query)(nil).Provides("example.com", 1, 1))
}
