package procurement

import (
	"encoding/json"
	"fmt"
)

// State is the full set of collections owned by Service. Its JSON form is
// the persisted blob: exactly three top-level arrays, no version field.
type State struct {
	Forecasts    []CashForecast         `json:"previsoesFinanceiras"`
	Requisitions []Requisition          `json:"requisicoes"`
	QueueItems   []ProcurementQueueItem `json:"itensCompras"`
}

func emptyState() State {
	return State{
		Forecasts:    []CashForecast{},
		Requisitions: []Requisition{},
		QueueItems:   []ProcurementQueueItem{},
	}
}

func (s State) clone() State {
	out := State{
		Forecasts:    append(make([]CashForecast, 0, len(s.Forecasts)), s.Forecasts...),
		Requisitions: make([]Requisition, 0, len(s.Requisitions)),
		QueueItems:   make([]ProcurementQueueItem, 0, len(s.QueueItems)),
	}
	for _, req := range s.Requisitions {
		out.Requisitions = append(out.Requisitions, cloneRequisition(req))
	}
	for _, item := range s.QueueItems {
		out.QueueItems = append(out.QueueItems, cloneQueueItem(item))
	}
	return out
}

func cloneRequisition(req Requisition) Requisition {
	if req.Items != nil {
		req.Items = append([]RequisitionLineItem(nil), req.Items...)
	}
	return req
}

func cloneQueueItem(item ProcurementQueueItem) ProcurementQueueItem {
	if item.NegotiatedPrice != nil {
		price := *item.NegotiatedPrice
		item.NegotiatedPrice = &price
	}
	return item
}

// EncodeState serialises the collections into the persisted blob.
func EncodeState(st State) ([]byte, error) {
	st = st.clone()
	blob, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("procurement: encode state: %w", err)
	}
	return blob, nil
}

// DecodeState parses a persisted blob. Absent fields become empty arrays.
func DecodeState(blob []byte) (State, error) {
	var st State
	if err := json.Unmarshal(blob, &st); err != nil {
		return State{}, fmt.Errorf("procurement: decode state: %w", err)
	}
	if st.Forecasts == nil {
		st.Forecasts = []CashForecast{}
	}
	if st.Requisitions == nil {
		st.Requisitions = []Requisition{}
	}
	if st.QueueItems == nil {
		st.QueueItems = []ProcurementQueueItem{}
	}
	return st, nil
}

func (s *State) requisitionIndex(id string) int {
	for i := range s.Requisitions {
		if s.Requisitions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) queueItemIndex(id string) int {
	for i := range s.QueueItems {
		if s.QueueItems[i].ID == id {
			return i
		}
	}
	return -1
}
