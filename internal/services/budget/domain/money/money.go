// Package money validates monetary amounts and currency codes and maintains
// projected budget lists.
package money

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
)

// ProjectedBudget is a forecast allocation from one organization in one currency.
type ProjectedBudget struct {
	Organization string `json:"organization"`
	Value        string `json:"value"`
	CurrencyCode string `json:"currencyCode"`
}

// ParseAmount validates a non-negative decimal string and returns its
// canonical form.
func ParseAmount(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", apperrors.InvalidInput(apperrors.CodeMoneyAmountInvalid, "money amount is required")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return "", apperrors.InvalidInput(apperrors.CodeMoneyAmountInvalid, fmt.Sprintf("money amount %q is not a decimal number", value))
	}
	if amount.IsNegative() {
		return "", apperrors.InvalidInput(apperrors.CodeMoneyAmountInvalid, fmt.Sprintf("money amount %q must not be negative", value))
	}
	return amount.String(), nil
}

// ParseCurrency validates an ISO 4217 code and returns it upper-cased.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", apperrors.InvalidInput(apperrors.CodeCurrencyCodeInvalid, fmt.Sprintf("currency code %q is not a valid ISO 4217 code", code))
	}
	return unit.String(), nil
}

// ParseOrganization trims and requires an organization name.
func ParseOrganization(organization string) (string, error) {
	trimmed := strings.TrimSpace(organization)
	if trimmed == "" {
		return "", apperrors.InvalidInput(apperrors.CodeOrganizationEmpty, "organization is required")
	}
	return trimmed, nil
}

// NewProjectedBudget validates all three parts of a budget entry.
func NewProjectedBudget(organization, value, currencyCode string) (ProjectedBudget, error) {
	org, err := ParseOrganization(organization)
	if err != nil {
		return ProjectedBudget{}, err
	}
	amount, err := ParseAmount(value)
	if err != nil {
		return ProjectedBudget{}, err
	}
	code, err := ParseCurrency(currencyCode)
	if err != nil {
		return ProjectedBudget{}, err
	}
	return ProjectedBudget{Organization: org, Value: amount, CurrencyCode: code}, nil
}

func samePair(b ProjectedBudget, organization, currencyCode string) bool {
	return b.Organization == organization && b.CurrencyCode == currencyCode
}

// Upsert returns a copy of budgets where the entry for the pair of b holds
// b.Value. A new pair is appended; an existing pair keeps its position.
func Upsert(budgets []ProjectedBudget, b ProjectedBudget) []ProjectedBudget {
	out := slices.Clone(budgets)
	for i := range out {
		if samePair(out[i], b.Organization, b.CurrencyCode) {
			out[i].Value = b.Value
			return out
		}
	}
	return append(out, b)
}

// Remove returns a copy of budgets without the pair and whether it was present.
func Remove(budgets []ProjectedBudget, organization, currencyCode string) ([]ProjectedBudget, bool) {
	idx := slices.IndexFunc(budgets, func(b ProjectedBudget) bool {
		return samePair(b, organization, currencyCode)
	})
	if idx < 0 {
		return slices.Clone(budgets), false
	}
	out := slices.Clone(budgets)
	return slices.Delete(out, idx, idx+1), true
}

// Find returns the entry for the pair.
func Find(budgets []ProjectedBudget, organization, currencyCode string) (ProjectedBudget, bool) {
	for _, b := range budgets {
		if samePair(b, organization, currencyCode) {
			return b, true
		}
	}
	return ProjectedBudget{}, false
}
