package model

import "github.com/shopspring/decimal"

// 通貨の小数桁
const CurrencyScale int32 = 2

// 単価×数量を通貨精度で丸める（明細ごとに丸める）
func LineSubtotal(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty)).Round(CurrencyScale)
}

// 明細小計の合計
func SumSubtotals(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}

// ゲートウェイ向けの最小通貨単位（セント）
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(CurrencyScale).Round(0).IntPart()
}
