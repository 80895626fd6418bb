package oracle

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

// EdgeOracle marks clusters of dense detail (text, faces, fine texture) as important.
// It works on a downscaled grayscale copy, scores grid cells by Laplacian energy and
// joins hot cells into bounding boxes.
type EdgeOracle struct {
	// AnalysisWidth is the width the image is reduced to before analysis.
	AnalysisWidth int
	// CellSize is the grid cell edge in analysis pixels.
	CellSize int
	// Sensitivity is the number of standard deviations above the mean a cell needs.
	Sensitivity float64
	// MinWidth and MinHeight filter regions in original pixels.
	MinWidth   int
	MinHeight  int
	MaxRegions int
}

func NewEdgeOracle() *EdgeOracle {
	return &EdgeOracle{
		AnalysisWidth: 320,
		CellSize:      8,
		Sensitivity:   1.0,
		MinWidth:      50,
		MinHeight:     20,
		MaxRegions:    16,
	}
}

var laplacian = [9]float64{
	0, 1, 0,
	1, -4, 1,
	0, 1, 0,
}

func (o *EdgeOracle) Detect(ctx context.Context, asset *media.Asset) ([]models.Region, error) {
	if asset.Image == nil {
		return nil, fmt.Errorf("no image data: %w", ErrUnsupported)
	}
	return o.DetectImage(ctx, asset.Image)
}

func (o *EdgeOracle) DetectImage(ctx context.Context, src image.Image) ([]models.Region, error) {
	bounds := src.Bounds()
	if bounds.Dx() < o.MinWidth || bounds.Dy() < o.MinHeight {
		return nil, nil
	}

	work := imaging.Clone(src)
	if bounds.Dx() > o.AnalysisWidth {
		work = imaging.Resize(src, o.AnalysisWidth, 0, imaging.Box)
	}
	gray := imaging.Grayscale(work)
	edges := imaging.Convolve3x3(gray, laplacian, &imaging.ConvolveOptions{Abs: true})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cell := o.CellSize
	cols := (edges.Bounds().Dx() + cell - 1) / cell
	rows := (edges.Bounds().Dy() + cell - 1) / cell
	energy := cellEnergy(edges, cell, cols, rows)

	mean, std := meanStd(energy)
	threshold := mean + o.Sensitivity*std
	if std == 0 || threshold <= 0 {
		return nil, nil
	}

	peak := 0.0
	for _, e := range energy {
		peak = math.Max(peak, e)
	}

	hot := make([]bool, len(energy))
	for i, e := range energy {
		hot[i] = e > threshold
	}

	sx := float64(bounds.Dx()) / float64(edges.Bounds().Dx())
	sy := float64(bounds.Dy()) / float64(edges.Bounds().Dy())
	limit := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	var regions []models.Region
	for _, comp := range components(hot, cols, rows) {
		cellRect := image.Rect(comp.minX*cell, comp.minY*cell, (comp.maxX+1)*cell, (comp.maxY+1)*cell)
		r := scaleRect(cellRect, sx, sy, limit).Add(bounds.Min)
		if r.Dx() <= o.MinWidth || r.Dy() <= o.MinHeight {
			continue
		}

		score := 0.7
		if peak > threshold {
			score += 0.3 * (comp.meanEnergy(energy) - threshold) / (peak - threshold)
		}
		regions = append(regions, models.Region{
			Label:  "detail",
			Bounds: r,
			Score:  math.Min(1, math.Max(0.7, score)),
		})
	}

	return topByScore(mergeRects(regions), o.MaxRegions), nil
}

func cellEnergy(edges *image.NRGBA, cell, cols, rows int) []float64 {
	energy := make([]float64, cols*rows)
	counts := make([]int, cols*rows)
	b := edges.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := y / cell
		off := y * edges.Stride
		for x := 0; x < b.Dx(); x++ {
			idx := row*cols + x/cell
			energy[idx] += float64(edges.Pix[off+x*4])
			counts[idx]++
		}
	}
	for i := range energy {
		if counts[i] > 0 {
			energy[i] /= float64(counts[i])
		}
	}
	return energy
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

type component struct {
	minX, minY, maxX, maxY int
	cells                  []int
}

func (c component) meanEnergy(energy []float64) float64 {
	var sum float64
	for _, i := range c.cells {
		sum += energy[i]
	}
	return sum / float64(len(c.cells))
}

// components groups 4-connected hot cells.
func components(hot []bool, cols, rows int) []component {
	seen := make([]bool, len(hot))
	var out []component
	for start := range hot {
		if !hot[start] || seen[start] {
			continue
		}
		c := component{minX: cols, minY: rows, maxX: -1, maxY: -1}
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			c.cells = append(c.cells, i)
			x, y := i%cols, i/cols
			c.minX, c.maxX = min(c.minX, x), max(c.maxX, x)
			c.minY, c.maxY = min(c.minY, y), max(c.maxY, y)

			neighbours := [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}}
			for _, n := range neighbours {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= cols || ny >= rows {
					continue
				}
				j := ny*cols + nx
				if hot[j] && !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		out = append(out, c)
	}
	return out
}
