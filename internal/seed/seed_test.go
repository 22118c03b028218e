package seed

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/catalog"
	"github.com/vladislavdragonenkov/coffeeshop/internal/storage/memory"
)

func silentLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	return log.NewEntry(logger)
}

func TestDefaultCatalogIsValid(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, catalog.SubCategories)
	require.NotEmpty(t, catalog.Products)

	for _, product := range catalog.Products {
		assert.Empty(t, product.ValidateInvariants(), product.ID)
	}
}

func TestParseExpandsOptionGroups(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)

	var latte domain.Product
	for _, p := range catalog.Products {
		if p.ID == "latte" {
			latte = p
		}
	}
	require.Equal(t, "Latte", latte.Name)
	_, ok := latte.OptionByCode("extra-shot")
	assert.True(t, ok)
	_, ok = latte.OptionByCode("caramel-syrup")
	assert.True(t, ok)
	assert.True(t, latte.Available)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("products: [\n"))
	require.Error(t, err)

	_, err = Parse([]byte(`
products:
  - id: mocha
    name: Mocha
    category: beverage
    sizes: [{name: tall, price_minor: 480}]
    option_groups: [chocolate]
`))
	require.ErrorContains(t, err, `unknown option group "chocolate"`)
}

func TestApplyIsRepeatable(t *testing.T) {
	ctx := context.Background()
	products := memory.NewProductRepository()
	svc := catalog.NewService(products, silentLogger())

	data, err := Default()
	require.NoError(t, err)

	first, err := Apply(ctx, svc, data, silentLogger())
	require.NoError(t, err)
	assert.Equal(t, len(data.Products), first.Products)

	_, err = Apply(ctx, svc, data, silentLogger())
	require.NoError(t, err)

	all, err := products.List(ctx, domain.ProductFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, all, len(data.Products))

	unavailable, err := products.Get(ctx, "turkey-pesto")
	require.NoError(t, err)
	assert.False(t, unavailable.Available)
}
