// -----------------------------------------------------------------------
// Portrait Grid Compositor - renders character portraits into a fixed
// row-major grid with name labels
// -----------------------------------------------------------------------

package compositor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/ternarybob/arbor"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/models"
)

// Cell is one grid slot: a portrait locator and the label drawn under it.
type Cell struct {
	Label   string
	Locator string
}

// Compositor renders fixed-layout portrait grids. Layout is config
// driven; slot count is columns x rows regardless of how many portraits
// exist. Missing portraits leave their slot empty rather than failing
// the whole grid.
type Compositor struct {
	config common.CompositorConfig
	logger arbor.ILogger
	client *http.Client
}

// New creates a compositor with the given layout configuration.
func New(config common.CompositorConfig, logger arbor.ILogger) *Compositor {
	return &Compositor{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// ComposeShow renders the grid for a show from its snapshot, filling
// slots in seed order with each character's portrait.
func (c *Compositor) ComposeShow(ctx context.Context, snapshot *models.ShowSnapshot) ([]byte, error) {
	cells := make([]Cell, 0, len(snapshot.Characters))
	for _, seed := range snapshot.Characters {
		cells = append(cells, Cell{
			Label:   seed.Name,
			Locator: snapshot.Portraits[seed.CharacterID],
		})
	}
	return c.Compose(ctx, cells)
}

// Compose renders cells into the grid, row-major from the top left.
// Cells beyond the slot count are dropped. Returns PNG bytes.
func (c *Compositor) Compose(ctx context.Context, cells []Cell) ([]byte, error) {
	slots := c.config.Columns * c.config.Rows
	if len(cells) > slots {
		cells = cells[:slots]
	}

	images := c.fetchAll(ctx, cells)

	canvas := image.NewRGBA(image.Rect(0, 0, c.config.Width, c.config.Height))
	fill(canvas, color.RGBA{R: 16, G: 16, B: 20, A: 255})

	cellWidth := (c.config.Width - c.config.Padding*(c.config.Columns+1)) / c.config.Columns
	cellHeight := (c.config.Height - c.config.Padding*(c.config.Rows+1)) / c.config.Rows
	imageHeight := cellHeight - c.config.LabelBand

	rendered := 0
	for i, cell := range cells {
		col := i % c.config.Columns
		row := i / c.config.Columns
		x := c.config.Padding + col*(cellWidth+c.config.Padding)
		y := c.config.Padding + row*(cellHeight+c.config.Padding)

		if img := images[i]; img != nil {
			drawScaled(canvas, img, image.Rect(x, y, x+cellWidth, y+imageHeight))
			rendered++
		}
		if cell.Label != "" {
			drawLabel(canvas, cell.Label, x, y+imageHeight, cellWidth, c.config.LabelBand)
		}
	}

	c.logger.Info().
		Int("slots", slots).
		Int("cells", len(cells)).
		Int("rendered", rendered).
		Msg("Portrait grid composed")

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode grid: %w", err)
	}
	return buf.Bytes(), nil
}

// fetchAll downloads and decodes every cell's portrait concurrently.
// A failed fetch yields a nil entry; it never aborts the others.
func (c *Compositor) fetchAll(ctx context.Context, cells []Cell) []image.Image {
	images := make([]image.Image, len(cells))
	var wg sync.WaitGroup

	for i, cell := range cells {
		if cell.Locator == "" {
			continue
		}
		wg.Add(1)
		go func(i int, locator string) {
			defer wg.Done()
			img, err := c.fetch(ctx, locator)
			if err != nil {
				c.logger.Warn().Int("slot", i).Err(err).Msg("Portrait fetch failed, leaving slot empty")
				return
			}
			images[i] = img
		}(i, cell.Locator)
	}

	wg.Wait()
	return images
}

// fetch loads one portrait from a data URL or an HTTP locator.
func (c *Compositor) fetch(ctx context.Context, locator string) (image.Image, error) {
	var reader io.Reader

	if strings.HasPrefix(locator, "data:") {
		_, payload, found := strings.Cut(locator, ",")
		if !found {
			return nil, fmt.Errorf("malformed data locator")
		}
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data locator payload is not base64: %w", err)
		}
		reader = bytes.NewReader(decoded)
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("portrait fetch returned %d", resp.StatusCode)
		}
		reader = resp.Body
	}

	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode portrait: %w", err)
	}
	return img, nil
}

// drawScaled scales src to fit dst preserving aspect ratio, centered.
func drawScaled(canvas *image.RGBA, src image.Image, dst image.Rectangle) {
	srcBounds := src.Bounds()
	if srcBounds.Dx() == 0 || srcBounds.Dy() == 0 {
		return
	}

	scaleX := float64(dst.Dx()) / float64(srcBounds.Dx())
	scaleY := float64(dst.Dy()) / float64(srcBounds.Dy())
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}

	w := int(float64(srcBounds.Dx()) * scale)
	h := int(float64(srcBounds.Dy()) * scale)
	x := dst.Min.X + (dst.Dx()-w)/2
	y := dst.Min.Y + (dst.Dy()-h)/2

	target := image.Rect(x, y, x+w, y+h)
	xdraw.ApproxBiLinear.Scale(canvas, target, src, srcBounds, xdraw.Over, nil)
}

// drawLabel renders the character name centered in the label band.
func drawLabel(canvas *image.RGBA, label string, x, y, width, band int) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	if textWidth > width {
		for len(label) > 1 && font.MeasureString(face, label+"...").Ceil() > width {
			label = label[:len(label)-1]
		}
		label += "..."
	}

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot: fixed.P(
			x+(width-font.MeasureString(face, label).Ceil())/2,
			y+(band+face.Metrics().Ascent.Ceil())/2,
		),
	}
	drawer.DrawString(label)
}

func fill(canvas *image.RGBA, c color.RGBA) {
	bounds := canvas.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			canvas.SetRGBA(x, y, c)
		}
	}
}
