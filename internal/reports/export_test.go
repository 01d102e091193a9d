package reports

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFinancialCSV(t *testing.T) {
	report := BuildFinancial(FinancialFilter{}, sampleProjects(), sampleEntries(), nil)
	buf := &bytes.Buffer{}
	require.NoError(t, WriteFinancialCSV(buf, report))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.Equal(t, "Project ID", records[0][0])
	require.Equal(t, "Alpha", records[1][1])
	require.Equal(t, "300.00", records[1][8])
	require.Equal(t, "Total", records[4][1])
	require.Equal(t, "1500.00", records[4][8])
}

func TestWriteProductivityCSV(t *testing.T) {
	report := BuildProductivity(Period{}, sampleEntries())
	buf := &bytes.Buffer{}
	require.NoError(t, WriteProductivityCSV(buf, report))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, "dev-a", records[1][0])
	require.Equal(t, "4.50", records[1][8])
}
