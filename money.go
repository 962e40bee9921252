package wealth

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Fraction returns the number of minor unit digits of a currency, 2 when the
// currency is unknown.
func Fraction(currency string) int32 {
	if c := money.GetCurrency(currency); c != nil {
		return int32(c.Fraction)
	}
	return 2
}

// RoundMoney rounds an amount to the minor unit of its currency.
func RoundMoney(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Fraction(currency))
}

// FormatMoney formats an amount with the currency's symbol, grouping and
// decimal conventions.
func FormatMoney(amount decimal.Decimal, currency string) string {
	c := money.GetCurrency(currency)
	if c == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(c.Fraction)).Round(0).IntPart()
	return c.Formatter().Format(minor)
}
