package domain

import "github.com/shopspring/decimal"

// Money is a fixed-point amount in the store currency.
type Money = decimal.Decimal

// Round2 rounds to centavos.
func Round2(m Money) Money {
	return m.Round(2)
}

// BuildSummary derives a day's summary from its sales and expense totals.
// Deposited is the cash expected at the bank: cash sales minus expenses paid out.
func BuildSummary(sales SalesTotals, expenses Money) DailySummary {
	return DailySummary{
		TotalGrossSales: Round2(sales.Gross),
		TotalExpenses:   Round2(expenses),
		TotalNetSales:   Round2(sales.Gross.Sub(expenses)),
		TotalCash:       Round2(sales.Cash),
		TotalGCash:      Round2(sales.GCash),
		TotalGrabFood:   Round2(sales.GrabFood),
		TotalFoodPanda:  Round2(sales.FoodPanda),
		TotalDeposited:  Round2(sales.Cash.Sub(expenses)),
		Orders:          sales.Orders,
	}
}

// Add sums two summaries field by field, used for range totals.
func (s DailySummary) Add(other DailySummary) DailySummary {
	s.TotalGrossSales = s.TotalGrossSales.Add(other.TotalGrossSales)
	s.TotalExpenses = s.TotalExpenses.Add(other.TotalExpenses)
	s.TotalNetSales = s.TotalNetSales.Add(other.TotalNetSales)
	s.TotalCash = s.TotalCash.Add(other.TotalCash)
	s.TotalGCash = s.TotalGCash.Add(other.TotalGCash)
	s.TotalGrabFood = s.TotalGrabFood.Add(other.TotalGrabFood)
	s.TotalFoodPanda = s.TotalFoodPanda.Add(other.TotalFoodPanda)
	s.TotalDeposited = s.TotalDeposited.Add(other.TotalDeposited)
	s.Orders += other.Orders
	return s
}
