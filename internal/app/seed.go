package app

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// Демо-каталог для локального запуска и cmd/loadtest.
var (
	demoVariants = []domain.ProductVariant{
		{
			ID: "demo-kurta-red", ProductID: "demo-kurta", ProductName: "Cotton kurta",
			Color: "red", SizeRange: "M-XXL", PricePerPieceMinor: 45_000, PiecesPerSet: 4, Stock: 10_000,
		},
		{
			ID: "demo-kurta-blue", ProductID: "demo-kurta", ProductName: "Cotton kurta",
			Color: "blue", SizeRange: "M-XXL", PricePerPieceMinor: 45_000, PiecesPerSet: 4, Stock: 10_000,
		},
		{
			ID: "demo-saree-green", ProductID: "demo-saree", ProductName: "Silk saree",
			Color: "green", SizeRange: "free", PricePerPieceMinor: 120_000, PiecesPerSet: 6, Stock: 500,
		},
	}

	demoAccounts = []domain.Account{
		{ID: "demo-retailer", Name: "Demo Retail Store", AgentID: "demo-agent"},
		{ID: "demo-retailer-2", Name: "Second Demo Store", AgentID: "demo-agent"},
		{ID: "demo-gaddi", Name: "Demo Gaddi"},
	}
)

// seedDemoCatalog создаёт демо-варианты и аккаунты. Повторный запуск не меняет остатки.
func seedDemoCatalog(variants domain.VariantRepository, accounts domain.AccountRepository, logger *log.Entry) error {
	now := time.Now().UTC()
	created := 0
	for _, variant := range demoVariants {
		variant.UpdatedAt = now
		err := variants.Create(variant)
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrVariantExists):
		default:
			return fmt.Errorf("seed variant %s: %w", variant.ID, err)
		}
	}

	for _, account := range demoAccounts {
		if err := accounts.Put(account); err != nil {
			return fmt.Errorf("seed account %s: %w", account.ID, err)
		}
	}

	logger.WithFields(log.Fields{
		"variants_created": created,
		"accounts":         len(demoAccounts),
	}).Info("demo catalog seeded")
	return nil
}
