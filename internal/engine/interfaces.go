package engine

import (
	"github.com/Veraticus/chargemap/internal/service"
)

// Store is the persistence the engine needs: active rules in, charges in,
// results and run summaries out.
type Store interface {
	service.RuleStore
	service.ChargeStore
}
