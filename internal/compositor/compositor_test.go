package compositor

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/models"
)

func testLayout() common.CompositorConfig {
	return common.CompositorConfig{
		Width:     300,
		Height:    220,
		Columns:   3,
		Rows:      2,
		Padding:   4,
		LabelBand: 18,
	}
}

// solidPNG encodes a uniform square as a base64 data locator.
func solidPNG(t *testing.T, c color.RGBA, size int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeGrid(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestComposeRendersAvailablePortraits(t *testing.T) {
	cfg := testLayout()
	comp := New(cfg, arbor.NewLogger())

	red := color.RGBA{R: 200, A: 255}
	cells := []Cell{
		{Label: "Ada", Locator: solidPNG(t, red, 40)},
		{Label: "Lin", Locator: solidPNG(t, red, 40)},
		{Label: "Rook", Locator: solidPNG(t, red, 40)},
	}

	data, err := comp.Compose(context.Background(), cells)
	require.NoError(t, err)

	grid := decodeGrid(t, data)
	bounds := grid.Bounds()
	assert.Equal(t, cfg.Width, bounds.Dx())
	assert.Equal(t, cfg.Height, bounds.Dy())

	// Center of the first cell's image area carries portrait pixels.
	cellWidth := (cfg.Width - cfg.Padding*(cfg.Columns+1)) / cfg.Columns
	cellHeight := (cfg.Height - cfg.Padding*(cfg.Rows+1)) / cfg.Rows
	cx := cfg.Padding + cellWidth/2
	cy := cfg.Padding + (cellHeight-cfg.LabelBand)/2
	r, _, _, _ := grid.At(cx, cy).RGBA()
	assert.Greater(t, r>>8, uint32(100), "first slot should carry the portrait")
}

// A slot whose portrait is missing or unfetchable stays background; the
// rest of the grid still renders.
func TestComposePartialGrid(t *testing.T) {
	cfg := testLayout()
	comp := New(cfg, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cells := []Cell{
		{Label: "Ada", Locator: solidPNG(t, color.RGBA{R: 200, A: 255}, 40)},
		{Label: "Lin"},
		{Label: "Rook", Locator: server.URL + "/missing.png"},
	}

	data, err := comp.Compose(context.Background(), cells)
	require.NoError(t, err)

	grid := decodeGrid(t, data)
	cellWidth := (cfg.Width - cfg.Padding*(cfg.Columns+1)) / cfg.Columns
	cellHeight := (cfg.Height - cfg.Padding*(cfg.Rows+1)) / cfg.Rows

	// Second slot stayed background.
	cx := cfg.Padding*2 + cellWidth + cellWidth/2
	cy := cfg.Padding + (cellHeight-cfg.LabelBand)/2
	r, g, b, _ := grid.At(cx, cy).RGBA()
	assert.Equal(t, uint32(16), r>>8)
	assert.Equal(t, uint32(16), g>>8)
	assert.Equal(t, uint32(20), b>>8)
}

func TestComposeDropsCellsBeyondSlots(t *testing.T) {
	cfg := testLayout()
	comp := New(cfg, arbor.NewLogger())

	cells := make([]Cell, cfg.Columns*cfg.Rows+3)
	for i := range cells {
		cells[i] = Cell{Label: "X", Locator: solidPNG(t, color.RGBA{B: 200, A: 255}, 20)}
	}

	data, err := comp.Compose(context.Background(), cells)
	require.NoError(t, err)
	decodeGrid(t, data)
}

func TestComposeEmptyCells(t *testing.T) {
	cfg := testLayout()
	comp := New(cfg, arbor.NewLogger())

	data, err := comp.Compose(context.Background(), nil)
	require.NoError(t, err)

	grid := decodeGrid(t, data)
	assert.Equal(t, cfg.Width, grid.Bounds().Dx())
}

func TestComposeShowFillsSlotsInSeedOrder(t *testing.T) {
	cfg := testLayout()
	comp := New(cfg, arbor.NewLogger())

	snapshot := models.NewShowSnapshot("show_a", "Test Show")
	snapshot.SetCharacters([]models.CharacterSeed{
		{CharacterID: "char_1", Name: "Ada"},
		{CharacterID: "char_2", Name: "Lin"},
	})
	snapshot.Portraits["char_1"] = solidPNG(t, color.RGBA{G: 200, A: 255}, 40)

	data, err := comp.ComposeShow(context.Background(), snapshot)
	require.NoError(t, err)

	grid := decodeGrid(t, data)
	cellWidth := (cfg.Width - cfg.Padding*(cfg.Columns+1)) / cfg.Columns
	cellHeight := (cfg.Height - cfg.Padding*(cfg.Rows+1)) / cfg.Rows

	// First slot shows Ada's green portrait.
	cx := cfg.Padding + cellWidth/2
	cy := cfg.Padding + (cellHeight-cfg.LabelBand)/2
	_, g, _, _ := grid.At(cx, cy).RGBA()
	assert.Greater(t, g>>8, uint32(100))

	// Second slot has no portrait and stays background.
	cx = cfg.Padding*2 + cellWidth + cellWidth/2
	r, _, _, _ := grid.At(cx, cy).RGBA()
	assert.Equal(t, uint32(16), r>>8)
}
