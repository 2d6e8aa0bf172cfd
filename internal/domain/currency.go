package domain

type Currency string

const (
	CurrencyARS Currency = "ARS"
	CurrencyUSD Currency = "USD"

	// BaseCurrency is the reporting currency every ledger movement is
	// expressed in through amount_base_equivalent.
	BaseCurrency = CurrencyARS
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyARS, CurrencyUSD:
		return true
	default:
		return false
	}
}

func (c Currency) IsBase() bool {
	return c == BaseCurrency
}
