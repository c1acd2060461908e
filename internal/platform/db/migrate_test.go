package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaAllowsAmendmentsOnSameDate(t *testing.T) {
	ddl := Schema()
	require.NotContains(t, ddl, "UNIQUE (sku, as_of, name)")
	require.Contains(t, ddl, "DROP CONSTRAINT IF EXISTS baselines_sku_as_of_name_key")
	require.Contains(t, ddl, "baselines_supersedes_key ON baselines (supersedes)")
}

func TestSchemaCarriesCurrentViewColumns(t *testing.T) {
	ddl := Schema()
	for _, col := range []string{"product_name", "rolling_average", "alert_level"} {
		require.Contains(t, ddl, "ADD COLUMN IF NOT EXISTS "+col+" ", col)
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	for _, stmt := range strings.Split(Schema(), ";") {
		stmt = strings.TrimSpace(stripComments(stmt))
		if stmt == "" {
			continue
		}
		upper := strings.ToUpper(stmt)
		require.True(t, strings.Contains(upper, "IF NOT EXISTS") || strings.Contains(upper, "IF EXISTS"), stmt)
	}
}

func stripComments(stmt string) string {
	var kept []string
	for _, line := range strings.Split(stmt, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
