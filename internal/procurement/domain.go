package procurement

import "errors"

// RequisitionStatus tracks a requisition through the approval workflow.
type RequisitionStatus string

const (
	StatusDraft                RequisitionStatus = "rascunho"
	StatusAwaitingApproval     RequisitionStatus = "aguardando_aprovacao"
	StatusInReview             RequisitionStatus = "em_analise"
	StatusPartiallyApproved    RequisitionStatus = "aprovado_parcial"
	StatusApproved             RequisitionStatus = "aprovado"
	StatusAwaitingRatification RequisitionStatus = "aguardando_ratificacao"
	StatusRejected             RequisitionStatus = "rejeitado"
	StatusRatified             RequisitionStatus = "ratificado"
)

// Workflow stage indexes.
const (
	StageSubmission  = 0
	StageExecutive   = 1
	StageProcurement = 2
	StageDelivery    = 3
)

// QueueStatus tracks a procurement queue item through quotation.
type QueueStatus string

const (
	QueueAwaitingQuote   QueueStatus = "aguardando_cotacao"
	QueueQuoting         QueueStatus = "em_cotacao"
	QueueReadyToOrder    QueueStatus = "pronto_pedido"
	QueueProcessingOrder QueueStatus = "processando_oc"
	QueueCancelled       QueueStatus = "cancelado"
)

// ForecastStatus marks whether a cash forecast is confirmed.
type ForecastStatus string

const (
	ForecastProjected ForecastStatus = "projetado"
	ForecastConfirmed ForecastStatus = "confirmado"
)

// ForecastScope is the cost-center scope of a cash forecast.
type ForecastScope string

const (
	ScopeGeneral  ForecastScope = "geral"
	ScopeTreasury ForecastScope = "tesouraria"
)

// PurchaseOrderStatus enumerates order states.
type PurchaseOrderStatus string

const (
	OrderIssued    PurchaseOrderStatus = "emitida"
	OrderSent      PurchaseOrderStatus = "enviada"
	OrderConfirmed PurchaseOrderStatus = "confirmada"
)

// RequisitionLineItem is a single requested product.
type RequisitionLineItem struct {
	ID        string  `json:"id"`
	Product   string  `json:"produto"`
	Quantity  float64 `json:"quantidade"`
	UnitPrice float64 `json:"precoUnitario"`
}

// Requisition is a purchase request.
type Requisition struct {
	ID            string                `json:"id"`
	Title         string                `json:"titulo"`
	Justification string                `json:"justificativa"`
	CostCenter    string                `json:"centroCusto"`
	Items         []RequisitionLineItem `json:"itens"`
	TotalValue    float64               `json:"valorTotal"`
	Status        RequisitionStatus     `json:"status"`
	Stage         int                   `json:"etapaAtual"`
	CreatedDate   string                `json:"dataCriacao"`
	CreatedTime   string                `json:"horaCriacao"`
}

// ProcurementQueueItem is one approved line awaiting supplier quotation.
type ProcurementQueueItem struct {
	ID               string      `json:"id"`
	RequisitionID    string      `json:"requisicaoId"`
	Product          string      `json:"produto"`
	ApprovedQuantity float64     `json:"quantidadeAprovada"`
	TargetPrice      float64     `json:"targetPrice"`
	Status           QueueStatus `json:"status"`
	Supplier         string      `json:"fornecedor,omitempty"`
	NegotiatedPrice  *float64    `json:"precoNegociado,omitempty"`
}

// CashForecast declares cash available for a period.
type CashForecast struct {
	ID          string         `json:"id"`
	PeriodStart string         `json:"periodoInicio"`
	PeriodEnd   string         `json:"periodoFim"`
	Responsible string         `json:"responsavel"`
	Amount      float64        `json:"valor"`
	Status      ForecastStatus `json:"status"`
	Scope       ForecastScope  `json:"centroCusto"`
}

// Quote is a supplier price collected for a queue item.
type Quote struct {
	ID           string  `json:"id"`
	ItemID       string  `json:"itemId"`
	Supplier     string  `json:"fornecedor"`
	UnitPrice    float64 `json:"preco"`
	LeadTimeDays int     `json:"prazoEntrega"`
	Notes        string  `json:"observacoes,omitempty"`
}

// PurchaseOrder summarises the ratified order for a requisition.
type PurchaseOrder struct {
	ID         string                 `json:"id"`
	Items      []ProcurementQueueItem `json:"itens"`
	Supplier   string                 `json:"fornecedor"`
	TotalValue float64                `json:"valorTotal"`
	IssuedAt   string                 `json:"dataEmissao"`
	Status     PurchaseOrderStatus    `json:"status"`
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)
