package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/rtgraph/internal/schedule"
)

type edge = schedule.Edge[string]

func TestOrder(t *testing.T) {
	tests := []struct {
		description string
		nodes       []string
		edges       []edge
		expected    []string
		err         error
	}{
		{
			description: "no edges",
			nodes:       []string{"a", "b", "c"},
			expected:    []string{"a", "b", "c"},
		},
		{
			description: "chain reversed",
			nodes:       []string{"out", "gain", "tone"},
			edges: []edge{
				{From: "tone", To: "gain"},
				{From: "gain", To: "out"},
			},
			expected: []string{"tone", "gain", "out"},
		},
		{
			description: "diamond",
			nodes:       []string{"in", "a", "b", "out"},
			edges: []edge{
				{From: "in", To: "b"},
				{From: "in", To: "a"},
				{From: "a", To: "out"},
				{From: "b", To: "out"},
			},
			expected: []string{"in", "b", "a", "out"},
		},
		{
			description: "cycle",
			nodes:       []string{"a", "b"},
			edges: []edge{
				{From: "a", To: "b"},
				{From: "b", To: "a"},
			},
			err: schedule.ErrCycle,
		},
		{
			description: "feedback breaks cycle",
			nodes:       []string{"a", "b"},
			edges: []edge{
				{From: "a", To: "b"},
				{From: "b", To: "a", Feedback: true},
			},
			expected: []string{"a", "b"},
		},
		{
			description: "unknown nodes ignored",
			nodes:       []string{"a"},
			edges: []edge{
				{From: "x", To: "a"},
			},
			expected: []string{"a"},
		},
	}
	for _, test := range tests {
		order, err := schedule.Order(test.nodes, test.edges)
		if test.err != nil {
			assert.ErrorIs(t, err, test.err, test.description)
			continue
		}
		assert.NoError(t, err, test.description)
		assert.Equal(t, test.expected, order, test.description)
	}
}

func TestWouldCycle(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	edges := []edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
	}
	assert.True(t, schedule.WouldCycle(nodes, edges, edge{From: "c", To: "a"}))
	assert.True(t, schedule.WouldCycle(nodes, edges, edge{From: "a", To: "a"}))
	assert.False(t, schedule.WouldCycle(nodes, edges, edge{From: "a", To: "c"}))
	assert.False(t, schedule.WouldCycle(nodes, edges, edge{From: "c", To: "a", Feedback: true}))
}
