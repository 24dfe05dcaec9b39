package procurement

import "github.com/shopspring/decimal"

// lineTotal returns quantity × unit price, unrounded.
func lineTotal(qty, price float64) decimal.Decimal {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
}

// sumLines totals requested quantities against unit prices.
func sumLines(items []RequisitionLineItem) float64 {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(lineTotal(item.Quantity, item.UnitPrice))
	}
	return total.InexactFloat64()
}

func sumAmounts(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

func sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

func percentOf(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromFloat(part).Div(decimal.NewFromFloat(whole)).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
}
