package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Totals is the KPI triple shown on the dashboard.
type Totals struct {
	Income   Money
	Expenses Money
	Net      Money // Income - Expenses
	Count    int
}
