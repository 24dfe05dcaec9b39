package procurement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RequisitionStatus
		ok       bool
	}{
		{StatusDraft, StatusAwaitingApproval, true},
		{StatusAwaitingApproval, StatusInReview, true},
		{StatusAwaitingApproval, StatusApproved, true},
		{StatusInReview, StatusRejected, true},
		{StatusApproved, StatusAwaitingRatification, true},
		{StatusPartiallyApproved, StatusAwaitingRatification, true},
		{StatusAwaitingRatification, StatusRatified, true},
		{StatusDraft, StatusApproved, false},
		{StatusRejected, StatusApproved, false},
		{StatusRatified, StatusAwaitingRatification, false},
		{StatusAwaitingApproval, StatusAwaitingRatification, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCanTransitionQueue(t *testing.T) {
	require.True(t, CanTransitionQueue(QueueAwaitingQuote, QueueQuoting))
	require.True(t, CanTransitionQueue(QueueQuoting, QueueProcessingOrder))
	require.True(t, CanTransitionQueue(QueueReadyToOrder, QueueCancelled))
	require.False(t, CanTransitionQueue(QueueCancelled, QueueQuoting))
	require.False(t, CanTransitionQueue(QueueProcessingOrder, QueueQuoting))
}

func TestNextRequisitionID(t *testing.T) {
	require.Equal(t, "#REQ-001", nextRequisitionID(nil))
	reqs := []Requisition{{ID: "#REQ-009"}, {ID: "#REQ-041"}, {ID: "legacy"}, {ID: "#REQ-002"}}
	require.Equal(t, "#REQ-042", nextRequisitionID(reqs))
	require.Equal(t, "#REQ-1000", nextRequisitionID([]Requisition{{ID: "#REQ-999"}}))
}

func TestQueueItemID(t *testing.T) {
	require.Equal(t, "#REQ-003-2", QueueItemID("#REQ-003", 2))
}
