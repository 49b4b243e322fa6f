// Package pattern resolves utility charges to standardized categories by
// evaluating ordered, customer-scoped regex rules.
package pattern

import (
	"github.com/Veraticus/chargemap/internal/model"
)

// Matcher evaluates charges against a fixed rule snapshot.
type Matcher interface {
	// Match resolves a single charge.
	Match(charge model.Charge) model.CategorizationResult
	// Categorize resolves a batch, one result per charge in input order.
	Categorize(charges []model.Charge) []model.CategorizationResult
	// InvalidRules lists rules skipped because their pattern did not compile.
	InvalidRules() []error
}

// Rule is an alias to the model.Rule type for convenience.
type Rule = model.Rule
