package artifact

import (
	"strings"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
)

const (
	maxItemsPerRow = 4
	minItemWidth   = 3
	maxItemWidth   = 12
	maxRowWidthSum = 12
)

// ValidateDashboardLayout enforces the row/width invariants from §3/§6: at
// most 4 items per row, each item's width in [3,12], and each row's width
// sum at most 12.
func ValidateDashboardLayout(rows []DashboardRow) error {
	for i, row := range rows {
		if len(row.Items) > maxItemsPerRow {
			return agenterrors.Newf(agenterrors.KindInvalidYaml, "row %d has %d items, at most %d allowed", i, len(row.Items), maxItemsPerRow)
		}
		sum := 0
		for _, item := range row.Items {
			if item.Width < minItemWidth || item.Width > maxItemWidth {
				return agenterrors.Newf(agenterrors.KindInvalidYaml, "row %d item %s has width %d, must be in [%d,%d]", i, item.MetricID, item.Width, minItemWidth, maxItemWidth)
			}
			sum += item.Width
		}
		if sum > maxRowWidthSum {
			return agenterrors.Newf(agenterrors.KindInvalidYaml, "row %d item widths sum to %d, at most %d allowed", i, sum, maxRowWidthSum)
		}
	}
	return nil
}

// RequiredColumnLabelFormats validates that chart_config.column_label_formats
// covers every name in selectColumns (the SQL's output columns). The
// analyzer's spaced "a . b" form is looked up as "a.b".
func RequiredColumnLabelFormats(cfg ChartConfig, selectColumns []string) error {
	missing := make([]string, 0)
	for _, col := range selectColumns {
		key := strings.ReplaceAll(col, " . ", ".")
		if _, ok := cfg.ColumnLabelFormats[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return agenterrors.Newf(agenterrors.KindInvalidYaml, "chart_config.column_label_formats is missing entries for columns: %v", missing)
	}
	return nil
}
