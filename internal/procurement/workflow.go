package procurement

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const requisitionPrefix = "#REQ-"

var requisitionTransitions = map[RequisitionStatus][]RequisitionStatus{
	StatusDraft:                {StatusAwaitingApproval},
	StatusAwaitingApproval:     {StatusInReview, StatusApproved, StatusRejected},
	StatusInReview:             {StatusApproved, StatusRejected},
	StatusApproved:             {StatusAwaitingRatification},
	StatusPartiallyApproved:    {StatusAwaitingRatification},
	StatusAwaitingRatification: {StatusRatified},
}

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueAwaitingQuote: {QueueQuoting, QueueCancelled},
	QueueQuoting:       {QueueReadyToOrder, QueueProcessingOrder, QueueCancelled},
	QueueReadyToOrder:  {QueueProcessingOrder, QueueCancelled},
}

// CanTransition reports whether a requisition may move from one status to another.
func CanTransition(from, to RequisitionStatus) bool {
	return slices.Contains(requisitionTransitions[from], to)
}

// CanTransitionQueue reports whether a queue item may move between statuses.
func CanTransitionQueue(from, to QueueStatus) bool {
	return slices.Contains(queueTransitions[from], to)
}

func validQueueStatus(status QueueStatus) bool {
	switch status {
	case QueueAwaitingQuote, QueueQuoting, QueueReadyToOrder, QueueProcessingOrder, QueueCancelled:
		return true
	}
	return false
}

// requisitionNumber extracts the numeric suffix of a ticket id.
func requisitionNumber(id string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, requisitionPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func formatRequisitionID(n int) string {
	return fmt.Sprintf("%s%03d", requisitionPrefix, n)
}

// nextRequisitionID scans for the highest numeric suffix and increments it.
func nextRequisitionID(reqs []Requisition) string {
	highest := 0
	for _, req := range reqs {
		if n, ok := requisitionNumber(req.ID); ok && n > highest {
			highest = n
		}
	}
	return formatRequisitionID(highest + 1)
}

// QueueItemID derives a queue item id from its requisition and 1-based line index.
func QueueItemID(requisitionID string, line int) string {
	return fmt.Sprintf("%s-%d", requisitionID, line)
}
