package export

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/procura-app/procura/internal/procurement"
)

var printer = message.NewPrinter(language.BrazilianPortuguese)

// FormatCurrency renders an amount in reais, e.g. "R$ 2.500,00".
func FormatCurrency(v float64) string {
	return "R$ " + printer.Sprint(number.Decimal(v, number.Scale(2)))
}

// FormatQuantity renders a quantity with up to two decimals.
func FormatQuantity(v float64) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

var statusLabels = map[procurement.QueueStatus]string{
	procurement.QueueAwaitingQuote:   "Aguardando Cotação",
	procurement.QueueQuoting:         "Em Cotação",
	procurement.QueueReadyToOrder:    "Pronto para Pedido",
	procurement.QueueProcessingOrder: "Processando OC",
	procurement.QueueCancelled:       "Cancelado",
}

// StatusLabel returns the display label of a queue status.
func StatusLabel(status procurement.QueueStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}
