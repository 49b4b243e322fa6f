package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/chargemap/internal/common"
)

// Condition is how a rule author compares a charge name to a value.
type Condition string

// Supported conditions.
const (
	ConditionExact      Condition = "exact"
	ConditionContains   Condition = "contains"
	ConditionStartsWith Condition = "starts_with"
	ConditionEndsWith   Condition = "ends_with"
	ConditionRegex      Condition = "regex"
)

var conditionAliases = map[string]Condition{
	"exact":           ConditionExact,
	"exactly_matches": ConditionExact,
	"equals":          ConditionExact,
	"contains":        ConditionContains,
	"starts_with":     ConditionStartsWith,
	"ends_with":       ConditionEndsWith,
	"regex":           ConditionRegex,
}

// ParseCondition accepts condition names in snake_case or as labels such as
// "Starts with".
func ParseCondition(s string) (Condition, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if c, ok := conditionAliases[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown condition %q", s)
}

// BuildPattern turns a condition and a literal value into a charge name
// mapping. Literal conditions escape value; ConditionRegex uses it as-is.
func BuildPattern(cond Condition, value string, ignoreCase bool) (string, error) {
	if value == "" {
		return "", common.NewValidationError("charge_name_mapping", "value must not be empty")
	}

	quoted := regexp.QuoteMeta(value)
	var expr string
	switch cond {
	case ConditionExact:
		expr = "^" + quoted + "$"
	case ConditionContains:
		expr = quoted
	case ConditionStartsWith:
		expr = "^" + quoted
	case ConditionEndsWith:
		expr = quoted + "$"
	case ConditionRegex:
		expr = value
	default:
		return "", fmt.Errorf("unknown condition %q", cond)
	}

	if ignoreCase && !strings.HasPrefix(expr, "(?i)") {
		expr = "(?i)" + expr
	}

	if _, err := common.CompileRegex(expr); err != nil {
		return "", &common.InvalidPatternError{Pattern: expr, Err: err}
	}
	return expr, nil
}
