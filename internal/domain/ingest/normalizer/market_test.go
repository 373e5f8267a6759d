package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMarketToken(t *testing.T) {
	tests := []struct {
		token string
		want  Market
	}{
		{"Acciones", MarketStocks},
		{"ACCIÓN", MarketStocks},
		{"Bonos", MarketBonds},
		{"bono", MarketBonds},
		{"Derivados", MarketDerivatives},
		{"Monedas", MarketCurrencies},
		{"CFI", MarketOther},
		{"Inmobiliario", MarketOther},
		{"", MarketOther},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMarketToken(tt.token))
		})
	}
}

func TestParseMarket(t *testing.T) {
	tests := []struct {
		raw  string
		want Market
	}{
		{"stocks", MarketStocks},
		{"Acciones", MarketStocks},
		{"cfi", MarketCFI},
		{"Fondos Mutuos", MarketMutualFunds},
		{"fondos_mutuos", MarketMutualFunds},
		{"FM", MarketMutualFunds},
		{"Acciones nacionales", MarketStocks},
		{"Fondo de inversión", MarketMutualFunds},
		{"Derivados", MarketDerivatives},
		{"Otro", MarketOther},
		{"xz", MarketOther},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseMarket(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMarket_Empty(t *testing.T) {
	_, err := ParseMarket("  ")
	assert.ErrorIs(t, err, ErrEmptyMarket)
}

func TestMarket_Label(t *testing.T) {
	assert.Equal(t, "Bonos", MarketBonds.Label())
	assert.Equal(t, "Fondos Mutuos", MarketMutualFunds.Label())
	assert.Equal(t, "Otro", Market("unknown").Label())
	assert.False(t, Market("unknown").Valid())
}

func TestFold(t *testing.T) {
	assert.Equal(t, "ano", Fold(" Año "))
	assert.Equal(t, "descripcion", Fold("DESCRIPCIÓN"))
}
