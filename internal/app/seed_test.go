package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
)

func TestSeedDemoCatalog_Idempotent(t *testing.T) {
	variants := memory.NewVariantRepository()
	accounts := memory.NewAccountRepository()
	logger := log.WithField("test", "seed")

	require.NoError(t, seedDemoCatalog(variants, accounts, logger))

	_, err := variants.AdjustStock("demo-kurta-red", -5)
	require.NoError(t, err)

	require.NoError(t, seedDemoCatalog(variants, accounts, logger))

	variant, err := variants.Get("demo-kurta-red")
	require.NoError(t, err)
	require.EqualValues(t, 10_000-5, variant.Stock, "reseeding must not reset stock")

	assigned, err := accounts.ListByAgent("demo-agent")
	require.NoError(t, err)
	require.Len(t, assigned, 2)

	gaddi, err := accounts.Get("demo-gaddi")
	require.NoError(t, err)
	require.Empty(t, gaddi.AgentID)
}

func TestDemoVariantsAreValid(t *testing.T) {
	for _, variant := range demoVariants {
		v := variant
		require.Empty(t, v.Validate(), "variant %s", v.ID)
	}
}
