// Package waterfall renders spectra over time as a heatmap image: frequency
// on the X axis, time (or sweep number) on the Y axis.
package waterfall

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/hb9tf/sweeper/sdr"
	"github.com/hb9tf/sweeper/sweep"
)

var (
	// Colors defining the gradient in the heatmap. The higher the index, the warmer.
	colors = []color.RGBA{
		{0, 0, 0, 255},       // black
		{0, 0, 255, 255},     // blue
		{0, 255, 255, 255},   // cyan
		{0, 255, 0, 255},     // green
		{255, 255, 0, 255},   // yellow
		{255, 0, 0, 255},     // red
		{255, 255, 255, 255}, // white
	}

	gridColor           = color.RGBA{0, 0, 0, 255}       // black
	gridBackgroundColor = color.RGBA{255, 255, 255, 255} // white

	expSuffixLookup = map[int]string{
		0: "Hz",  // 10^0
		1: "kHz", // 10^3
		2: "MHz", // 10^6
		3: "GHz", // 10^9
		4: "THz", // 10^12
	}
)

const (
	TimeFmt        = "2006-01-02T15:04:05"
	gridMarginTop  = 20  // pixels
	gridMarginLeft = 150 // pixels
	gridTickLen    = 10  // pixel
	gridMinStepX   = 100 // pixels
	gridMinStepY   = 20  // pixels
	maxDimension   = 4096
)

// Point is the power of one bin. Row orders points on the Y axis: a sweep
// number, or a Unix millisecond timestamp.
type Point struct {
	FreqLow  uint64
	FreqHigh uint64
	Row      int64
	DB       float64
}

// FromRecords reads packed binary records until EOF. A record starting at
// the lowest frequency of the first record opens a new row.
func FromRecords(r io.Reader) ([]Point, error) {
	var points []Point
	var start uint64
	row := int64(-1)
	for {
		rec, err := sweep.ReadRecord(r)
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return points, err
		}
		if row < 0 {
			start = rec.LowHz
		}
		if rec.LowHz == start {
			row++
		}
		if len(rec.Power) == 0 {
			continue
		}
		width := (rec.HighHz - rec.LowHz) / uint64(len(rec.Power))
		for i, p := range rec.Power {
			low, high := sdr.BinRange(rec.LowHz, rec.HighHz, width, uint64(i))
			points = append(points, Point{FreqLow: low, FreqHigh: high, Row: row, DB: float64(p)})
		}
	}
}

// FromSamples uses each sample's start time as its row.
func FromSamples(samples []sdr.Sample) []Point {
	points := make([]Point, 0, len(samples))
	for _, s := range samples {
		points = append(points, Point{FreqLow: s.FreqLow, FreqHigh: s.FreqHigh, Row: s.Start.UnixMilli(), DB: s.DBHigh})
	}
	return points
}

// TimeLabel labels rows holding Unix millisecond timestamps.
func TimeLabel(row int64) string {
	return time.UnixMilli(row).Format(TimeFmt)
}

// SweepLabel labels rows holding sweep numbers.
func SweepLabel(row int64) string {
	return "sweep " + strconv.FormatInt(row, 10)
}

// GetColor determines the color of a pixel based on a color gradient and a pixel "level".
// http://www.andrewnoske.com/wiki/Code_-_heatmaps_and_color_gradients
func GetColor(lvl uint16) color.RGBA {
	// Find the pair of gradient colors lvl falls between, then blend them by
	// how far along that segment it is.
	segments := len(colors) - 1
	pos := float64(lvl) / math.MaxUint16 * float64(segments)
	i := int(pos)
	if i >= segments {
		return colors[segments]
	}
	fract := pos - float64(i)
	lo, hi := colors[i], colors[i+1]
	blend := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*fract))
	}
	return color.RGBA{blend(lo.R, hi.R), blend(lo.G, hi.G), blend(lo.B, hi.B), blend(lo.A, hi.A)}
}

func GetReadableFreq(freq uint64) string {
	exp := 0
	for f := float64(freq); f >= 1000; f = f / 1000.0 {
		exp += 1
	}
	suffix, ok := expSuffixLookup[exp]
	if !ok {
		return fmt.Sprintf("%d Hz", freq)
	}
	return fmt.Sprintf("%.2f %s", float64(freq)/math.Pow(1000, float64(exp)), suffix)
}

func drawTick(canvas *image.RGBA, start image.Point, length int, horizontal bool) {
	for i := 0; i <= length; i++ {
		if horizontal {
			canvas.SetRGBA(start.X+i, start.Y, gridColor)
		} else {
			canvas.SetRGBA(start.X, start.Y+i, gridColor)
		}
	}
}

func findGridStepSize(step int, horizontal bool) int {
	gridMinStep := gridMinStepY
	if horizontal {
		gridMinStep = gridMinStepX
	}
	for step > gridMinStep {
		n := step / 2
		if n < gridMinStep {
			return step
		}
		step = n
	}
	return step
}

func drawLabel(canvas *image.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(gridColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// DrawGrid returns source on a larger canvas with frequency ticks on top
// and row ticks on the left.
func DrawGrid(source *image.RGBA, lowFreq, highFreq uint64, firstRow, lastRow int64, label func(int64) string) *image.RGBA {
	b := source.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx()+gridMarginLeft, b.Dy()+gridMarginTop))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{gridBackgroundColor}, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(gridMarginLeft, gridMarginTop, canvas.Bounds().Max.X, canvas.Bounds().Max.Y), source, b.Min, draw.Src)

	// Draw X ticks.
	xStep := findGridStepSize(b.Dx(), true)
	for i := 0; i < b.Dx(); i += xStep {
		drawTick(canvas, image.Point{gridMarginLeft + i, gridMarginTop - gridTickLen}, gridTickLen, false)
		freq := lowFreq + uint64(i)*(highFreq-lowFreq)/uint64(b.Dx())
		drawLabel(canvas, gridMarginLeft+i+5, gridMarginTop-2, GetReadableFreq(freq))
	}

	// Draw Y ticks.
	yStep := findGridStepSize(b.Dy(), false)
	for i := 0; i < b.Dy(); i += yStep {
		drawTick(canvas, image.Point{gridMarginLeft - gridTickLen, gridMarginTop + i}, gridTickLen, true)
		row := firstRow + int64(i)*(lastRow-firstRow)/int64(b.Dy())
		drawLabel(canvas, 5, gridMarginTop+i+12, label(row))
	}
	return canvas
}

type Options struct {
	// Width and Height of the heatmap in pixels. Zero derives them from
	// the number of distinct bins and rows in the data.
	Width  int
	Height int

	AddGrid  bool
	RowLabel func(int64) string
}

type Result struct {
	Image *image.RGBA

	LowFreq  uint64
	HighFreq uint64
	FirstRow int64
	LastRow  int64
	MinDB    float64
	MaxDB    float64
}

// Render paints points as a heatmap. Several points falling on one pixel
// keep the strongest.
func Render(points []Point, opts Options) (*Result, error) {
	if len(points) == 0 {
		return nil, errors.New("no data to render")
	}
	res := &Result{
		LowFreq:  math.MaxUint64,
		FirstRow: math.MaxInt64,
		LastRow:  math.MinInt64,
		MinDB:    math.Inf(1),
		MaxDB:    math.Inf(-1),
	}
	freqs := map[uint64]bool{}
	rows := map[int64]bool{}
	for _, p := range points {
		res.LowFreq = min(res.LowFreq, p.FreqLow)
		res.HighFreq = max(res.HighFreq, p.FreqHigh)
		res.FirstRow = min(res.FirstRow, p.Row)
		res.LastRow = max(res.LastRow, p.Row)
		if !math.IsInf(p.DB, 0) && !math.IsNaN(p.DB) {
			res.MinDB = math.Min(res.MinDB, p.DB)
			res.MaxDB = math.Max(res.MaxDB, p.DB)
		}
		freqs[p.FreqLow] = true
		rows[p.Row] = true
	}
	if res.HighFreq <= res.LowFreq {
		return nil, fmt.Errorf("empty frequency span %d-%d Hz", res.LowFreq, res.HighFreq)
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = min(len(freqs), maxDimension)
	}
	if height <= 0 {
		height = min(len(rows), maxDimension)
	}

	// Keep the strongest point per pixel.
	cells := make([]float64, width*height)
	for i := range cells {
		cells[i] = math.Inf(-1)
	}
	span := float64(res.HighFreq - res.LowFreq)
	rowSpan := float64(res.LastRow-res.FirstRow) + 1
	for _, p := range points {
		center := float64(p.FreqLow+p.FreqHigh)/2 - float64(res.LowFreq)
		x := min(int(center/span*float64(width)), width-1)
		y := min(int(float64(p.Row-res.FirstRow)/rowSpan*float64(height)), height-1)
		if idx := y*width + x; p.DB > cells[idx] {
			cells[idx] = p.DB
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	dbRange := res.MaxDB - res.MinDB
	for i, db := range cells {
		if math.IsInf(db, -1) {
			continue
		}
		lvl := 0.0
		if dbRange > 0 {
			lvl = math.Max(0, math.Min(1, (db-res.MinDB)/dbRange))
		}
		canvas.SetRGBA(i%width, i/width, GetColor(uint16(lvl*math.MaxUint16)))
	}

	res.Image = canvas
	if opts.AddGrid {
		label := opts.RowLabel
		if label == nil {
			label = SweepLabel
		}
		res.Image = DrawGrid(canvas, res.LowFreq, res.HighFreq, res.FirstRow, res.LastRow, label)
	}
	return res, nil
}

// DistinctRows is the number of different rows in points, in order.
func DistinctRows(points []Point) []int64 {
	seen := map[int64]bool{}
	var out []int64
	for _, p := range points {
		if !seen[p.Row] {
			seen[p.Row] = true
			out = append(out, p.Row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
