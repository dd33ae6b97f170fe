package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validMetricYAML = `
name: revenue_by_customer
dataset_ids: ["11111111-1111-1111-1111-111111111111"]
time_frame: last_quarter
sql: "SELECT c.id, c.total FROM analytics.customers AS c"
chart_config:
  selected_chart_type: bar
  column_label_formats:
    c.id: number
    c.total: currency
`

const validDashboardYAML = `
title: Revenue Overview
rows:
  - items:
      - id: "11111111-1111-1111-1111-111111111111"
        width: 6
      - id: "22222222-2222-2222-2222-222222222222"
        width: 6
`

func TestValidateMetricYAMLAcceptsWellFormedMetric(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateMetricYAML(validMetricYAML))
}

func TestValidateMetricYAMLRejectsMissingRequiredField(t *testing.T) {
	t.Parallel()

	err := ValidateMetricYAML(`
name: revenue
time_frame: last_quarter
sql: "SELECT 1"
chart_config:
  selected_chart_type: bar
  column_label_formats: {}
`)
	require.Error(t, err, "dataset_ids is required")
}

func TestValidateMetricYAMLRejectsInvalidChartType(t *testing.T) {
	t.Parallel()

	err := ValidateMetricYAML(`
name: revenue
dataset_ids: ["11111111-1111-1111-1111-111111111111"]
time_frame: last_quarter
sql: "SELECT 1"
chart_config:
  selected_chart_type: pyramid
  column_label_formats: {}
`)
	require.Error(t, err)
}

func TestValidateMetricYAMLRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	err := ValidateMetricYAML("not: [valid: yaml")
	require.Error(t, err)
}

func TestValidateDashboardYAMLAcceptsWellFormedDashboard(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateDashboardYAML(validDashboardYAML))
}

func TestValidateDashboardYAMLRejectsMissingTitle(t *testing.T) {
	t.Parallel()

	err := ValidateDashboardYAML(`
rows:
  - items: []
`)
	require.Error(t, err)
}

func TestValidateDashboardYAMLRejectsTooManyItemsInRow(t *testing.T) {
	t.Parallel()

	err := ValidateDashboardYAML(`
title: Too Many
rows:
  - items:
      - id: "1"
        width: 3
      - id: "2"
        width: 3
      - id: "3"
        width: 3
      - id: "4"
        width: 3
      - id: "5"
        width: 3
`)
	require.Error(t, err)
}

func TestValidateDashboardYAMLRejectsWidthOutOfRange(t *testing.T) {
	t.Parallel()

	err := ValidateDashboardYAML(`
title: Bad Width
rows:
  - items:
      - id: "1"
        width: 1
`)
	require.Error(t, err)
}
