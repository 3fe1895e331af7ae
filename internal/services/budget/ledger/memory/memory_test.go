package memory

import (
	"testing"

	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	"github.com/openkfw/trubudget/internal/services/budget/ledger/ledgertest"
)

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(*testing.T) ledger.Store { return New() })
}
