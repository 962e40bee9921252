package wealth

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CategoryType groups categories.
type CategoryType string

const (
	ExpenseCategory    CategoryType = "Expense"
	IncomeCategory     CategoryType = "Income"
	FundCategory       CategoryType = "Fund"
	ReceivableCategory CategoryType = "Receivable"
)

// ParseCategoryType parses a category type, ignoring case.
func ParseCategoryType(s string) (CategoryType, error) {
	for _, t := range []CategoryType{ExpenseCategory, IncomeCategory, FundCategory, ReceivableCategory} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown category type %q", s)
}

// Category labels transactions. A zero BudgetLimit means no budget.
type Category struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        CategoryType    `json:"type"`
	BudgetLimit decimal.Decimal `json:"budgetLimit"`
}
