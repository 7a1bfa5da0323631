package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Alumnos",
		Headers: []string{"Apellido", "Nombre", "DNI"},
		Rows: [][]string{
			{"García", "Ana", "30.111.222"},
			{"Pérez", "Luis", "28999111"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Apellido,Nombre,DNI\nGarcía,Ana,30.111.222\nPérez,Luis,28999111\n", string(out))
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, []string{"only one"})
	_, err := NewCSVExporter().Render(data)
	assert.Error(t, err)
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	exporter := &PDFExporter{Widths: []float64{2, 2, 1}}
	out, err := exporter.Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterColumnWidths(t *testing.T) {
	exporter := &PDFExporter{Widths: []float64{1, 3}}
	widths := exporter.columnWidths(2)
	assert.InDelta(t, pageWidth/4, widths[0], 0.001)
	assert.InDelta(t, pageWidth*3/4, widths[1], 0.001)

	even := NewPDFExporter().columnWidths(4)
	assert.InDelta(t, pageWidth/4, even[3], 0.001)
}
