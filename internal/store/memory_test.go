package store

import (
	"testing"
	"time"

	"WhaleSentinel/internal/model"
)

func TestInsertActivityDuplicateTxRejected(t *testing.T) {
	st := NewMemoryStore()
	act := &model.Activity{
		ID:              "a1",
		Wallet:          "0xw",
		Side:            model.SideBuy,
		ConditionID:     "cond-1",
		Size:            1000,
		Price:           0.50,
		Status:          model.StatusOpen,
		TransactionHash: "tx1",
		Timestamp:       time.Now(),
	}
	if err := st.InsertActivity(act); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := *act
	dup.ID = "a2"
	if err := st.InsertActivity(&dup); err == nil {
		t.Fatal("duplicate (wallet, tx_hash) insert accepted")
	}

	// Same hash under a different wallet is a distinct trade.
	other := *act
	other.ID = "a3"
	other.Wallet = "0xother"
	if err := st.InsertActivity(&other); err != nil {
		t.Errorf("insert for different wallet rejected: %v", err)
	}

	// Records without a transaction hash are not deduplicated.
	for i, id := range []string{"m1", "m2"} {
		manual := *act
		manual.ID = id
		manual.TransactionHash = ""
		if err := st.InsertActivity(&manual); err != nil {
			t.Errorf("hashless insert %d rejected: %v", i+1, err)
		}
	}
}
