package domain

import (
	"testing"
	"time"
)

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		AccountID:   "acc-1",
		Type:        TransactionTypeCharge,
		AmountMinor: 100,
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if errs := valid.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	cases := map[string]func(tx *Transaction){
		"no account":  func(tx *Transaction) { tx.AccountID = "" },
		"bad type":    func(tx *Transaction) { tx.Type = "refund" },
		"zero amount": func(tx *Transaction) { tx.AmountMinor = 0 },
		"no date":     func(tx *Transaction) { tx.Date = time.Time{} },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			tx := valid
			mut(&tx)
			if errs := tx.Validate(); len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
		})
	}
}

func TestVariantValidate(t *testing.T) {
	v := ProductVariant{ID: "v-1", PiecesPerSet: 6, PricePerPieceMinor: 100, Stock: 2}
	if errs := v.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	v.Stock = -1
	v.PiecesPerSet = 0
	if errs := v.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}
