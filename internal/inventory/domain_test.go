package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTransactionType(t *testing.T) {
	cases := map[string]TransactionType{
		"Receive":     TransactionTypeReceive,
		"ship":        TransactionTypeShip,
		"REPACK":      TransactionTypeRepack,
		"AdjustUp":    TransactionTypeAdjustUp,
		"adjust-down": TransactionTypeAdjustDown,
		" Adjust Up ": TransactionTypeAdjustUp,
	}
	for raw, want := range cases {
		got, err := ParseTransactionType(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}

	_, err := ParseTransactionType("Transfer")
	require.ErrorIs(t, err, ErrUnknownTransactionType)
}

func TestTransactionTypeSign(t *testing.T) {
	require.Equal(t, int64(1), TransactionTypeReceive.Sign())
	require.Equal(t, int64(1), TransactionTypeRepack.Sign())
	require.Equal(t, int64(1), TransactionTypeAdjustUp.Sign())
	require.Equal(t, int64(-1), TransactionTypeShip.Sign())
	require.Equal(t, int64(-1), TransactionTypeAdjustDown.Sign())
	require.False(t, TransactionType("TRANSFER").Valid())
}

func TestNormalizeLot(t *testing.T) {
	require.Equal(t, "17612-250300", NormalizeLot("17612 - 250300"))
	require.Equal(t, "17612-250300", NormalizeLot(" 17612-250300 "))
	require.Equal(t, "17612-250300", NormalizeLot("17612 -250300"))
	require.Equal(t, "A B-C", NormalizeLot("a  b - c"))
	require.Equal(t, "", NormalizeLot("   "))
}

func TestShipmentPackageCountDefaultsToOne(t *testing.T) {
	require.Equal(t, 1, ShipmentLineItem{}.PackageCount())
	require.Equal(t, 3, ShipmentLineItem{Packages: 3}.PackageCount())
}
