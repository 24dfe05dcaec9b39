package procurement

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// GlobalAvailability sums every forecast amount regardless of period or scope.
func GlobalAvailability(forecasts []CashForecast) float64 {
	total := decimal.Zero
	for _, f := range forecasts {
		total = total.Add(decimal.NewFromFloat(f.Amount))
	}
	return total.InexactFloat64()
}

func pending(req Requisition) bool {
	return req.Status == StatusAwaitingApproval || req.Status == StatusInReview
}

// PendingApprovalValue sums the totals of requisitions awaiting an executive decision.
func PendingApprovalValue(reqs []Requisition) float64 {
	values := make([]float64, 0, len(reqs))
	for _, req := range reqs {
		if pending(req) {
			values = append(values, req.TotalValue)
		}
	}
	return sumAmounts(values...)
}

// CostCenterDemand aggregates pending demand for one cost center.
type CostCenterDemand struct {
	CostCenter string  `json:"centroCusto"`
	Value      float64 `json:"valor"`
	Count      int     `json:"quantidade"`
	Share      float64 `json:"percentual"`
}

// DemandByCostCenter groups pending requisitions by cost center, largest first.
func DemandByCostCenter(reqs []Requisition) []CostCenterDemand {
	index := map[string]int{}
	out := []CostCenterDemand{}
	for _, req := range reqs {
		if !pending(req) {
			continue
		}
		idx, ok := index[req.CostCenter]
		if !ok {
			idx = len(out)
			index[req.CostCenter] = idx
			out = append(out, CostCenterDemand{CostCenter: req.CostCenter})
		}
		out[idx].Value = sumAmounts(out[idx].Value, req.TotalValue)
		out[idx].Count++
	}
	total := PendingApprovalValue(reqs)
	for i := range out {
		out[i].Share = percentOf(out[i].Value, total)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].CostCenter < out[j].CostCenter
	})
	return out
}

// Dashboard holds the executive overview figures.
type Dashboard struct {
	PendingValue       float64            `json:"valorPendente"`
	PendingCount       int                `json:"quantidadePendente"`
	TotalRequisitions  int                `json:"totalRequisicoes"`
	GlobalAvailability float64            `json:"disponibilidadeGlobal"`
	Balance            float64            `json:"saldo"`
	Deficit            float64            `json:"deficit"`
	HasDeficit         bool               `json:"temDeficit"`
	DemandByCostCenter []CostCenterDemand `json:"demandaPorCentroCusto"`
}

// BuildDashboard derives the dashboard from a state snapshot.
func BuildDashboard(st State) Dashboard {
	pendingCount := 0
	for _, req := range st.Requisitions {
		if pending(req) {
			pendingCount++
		}
	}
	availability := GlobalAvailability(st.Forecasts)
	pendingValue := PendingApprovalValue(st.Requisitions)
	balance := sub(availability, pendingValue)
	d := Dashboard{
		PendingValue:       pendingValue,
		PendingCount:       pendingCount,
		TotalRequisitions:  len(st.Requisitions),
		GlobalAvailability: availability,
		Balance:            balance,
		DemandByCostCenter: DemandByCostCenter(st.Requisitions),
	}
	if balance < 0 {
		d.Deficit = -balance
		d.HasDeficit = true
	}
	return d
}

// ApprovalSummary is the footer of the approval matrix.
type ApprovalSummary struct {
	OriginalTotal  float64 `json:"valorOriginal"`
	ApprovedTotal  float64 `json:"valorAprovado"`
	Savings        float64 `json:"economia"`
	SavingsPercent float64 `json:"economiaPercentual"`
	ApprovedItems  int     `json:"itensAprovados"`
	Availability   float64 `json:"disponibilidade"`
	HasDeficit     bool    `json:"temDeficit"`
}

// BuildApproval drafts the queue items of an approval. approved maps line
// item ids to approved quantities; a missing line keeps its requested
// quantity, zero cancels the line.
func BuildApproval(req Requisition, approved map[string]float64, availability float64) ([]ProcurementQueueItem, ApprovalSummary, error) {
	for id := range approved {
		found := false
		for _, line := range req.Items {
			if line.ID == id {
				found = true
				break
			}
		}
		if !found {
			return nil, ApprovalSummary{}, fmt.Errorf("%w: line %s not in requisition %s", ErrValidation, id, req.ID)
		}
	}
	items := make([]ProcurementQueueItem, 0, len(req.Items))
	original := decimal.Zero
	approvedTotal := decimal.Zero
	count := 0
	for i, line := range req.Items {
		qty := line.Quantity
		if v, ok := approved[line.ID]; ok {
			qty = v
		}
		if qty < 0 || qty > line.Quantity {
			return nil, ApprovalSummary{}, fmt.Errorf("%w: line %s quantity %.2f outside 0..%.2f", ErrValidation, line.ID, qty, line.Quantity)
		}
		original = original.Add(lineTotal(line.Quantity, line.UnitPrice))
		status := QueueAwaitingQuote
		if qty == 0 {
			status = QueueCancelled
		} else {
			approvedTotal = approvedTotal.Add(lineTotal(qty, line.UnitPrice))
			count++
		}
		items = append(items, ProcurementQueueItem{
			ID:               QueueItemID(req.ID, i+1),
			RequisitionID:    req.ID,
			Product:          line.Product,
			ApprovedQuantity: qty,
			TargetPrice:      line.UnitPrice,
			Status:           status,
		})
	}
	origF := original.InexactFloat64()
	apprF := approvedTotal.InexactFloat64()
	savings := sub(origF, apprF)
	return items, ApprovalSummary{
		OriginalTotal:  origF,
		ApprovedTotal:  apprF,
		Savings:        savings,
		SavingsPercent: percentOf(savings, origF),
		ApprovedItems:  count,
		Availability:   availability,
		HasDeficit:     apprF > availability,
	}, nil
}

// QueueKPIs counts queue items per procurement status.
type QueueKPIs struct {
	ToQuote      int `json:"aguardandoCotacao"`
	Quoting      int `json:"emCotacao"`
	ReadyToOrder int `json:"prontoPedido"`
	OrdersIssued int `json:"processandoOC"`
	Cancelled    int `json:"cancelados"`
}

// BuildQueueKPIs tallies queue items by status.
func BuildQueueKPIs(items []ProcurementQueueItem) QueueKPIs {
	var k QueueKPIs
	for _, item := range items {
		switch item.Status {
		case QueueAwaitingQuote:
			k.ToQuote++
		case QueueQuoting:
			k.Quoting++
		case QueueReadyToOrder:
			k.ReadyToOrder++
		case QueueProcessingOrder:
			k.OrdersIssued++
		case QueueCancelled:
			k.Cancelled++
		}
	}
	return k
}

// RatificationSummary compares the authorised budget with the negotiated offer.
type RatificationSummary struct {
	Authorised     float64 `json:"valorAutorizado"`
	BestOffer      float64 `json:"melhorOferta"`
	Savings        float64 `json:"economia"`
	SavingsPercent float64 `json:"economiaPercentual"`
}

// SummarizeRatification prices non-cancelled items at their target and at
// their negotiated price, falling back to target when none was negotiated.
func SummarizeRatification(items []ProcurementQueueItem) RatificationSummary {
	authorised := decimal.Zero
	offer := decimal.Zero
	for _, item := range items {
		if item.Status == QueueCancelled {
			continue
		}
		authorised = authorised.Add(lineTotal(item.ApprovedQuantity, item.TargetPrice))
		price := item.TargetPrice
		if item.NegotiatedPrice != nil {
			price = *item.NegotiatedPrice
		}
		offer = offer.Add(lineTotal(item.ApprovedQuantity, price))
	}
	a := authorised.InexactFloat64()
	o := offer.InexactFloat64()
	savings := sub(a, o)
	return RatificationSummary{
		Authorised:     a,
		BestOffer:      o,
		Savings:        savings,
		SavingsPercent: percentOf(savings, a),
	}
}
