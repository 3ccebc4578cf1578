// Package projector reduces batches of high-dimensional embeddings to 2-D
// coordinates for visualization.
//
// A Projector holds two Reducer slots, "pca" and "umap". Both default to
// PCA; the umap slot accepts any Reducer (for example a neighbor-graph
// embedding) through Options.UMAP without changing how the Projector is
// used:
//
//	p := projector.New(projector.DefaultOptions())
//	if err := p.Fit(reference); err != nil { ... }
//	ref, _ := p.ReferenceEmbeddings()
//	res, _ := p.Transform(batch)
//
// A Projector is not safe for concurrent use. Callers must not overlap Fit
// with Transform or another Fit on the same instance.
package projector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/obz-ai/obz/pkg/metrics"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultComponents is the output dimensionality of both reducers.
	DefaultComponents = 2

	slotPCA  = "pca"
	slotUMAP = "umap"
)

// Result pairs the coordinates produced by the two reducers. Row i of each
// table corresponds to row i of the input batch.
type Result struct {
	PCA  *mat.Dense
	UMAP *mat.Dense
}

// Point is a single 2-D coordinate, serialized with the column names the
// backend expects.
type Point struct {
	X float64 `json:"x_coor"`
	Y float64 `json:"y_coor"`
}

// Points converts both tables into point lists. Tables with fewer than two
// columns leave Y at zero; extra columns are ignored.
func (r Result) Points() (pca, umap []Point) {
	return toPoints(r.PCA), toPoints(r.UMAP)
}

func toPoints(m *mat.Dense) []Point {
	if m == nil {
		return nil
	}
	rows, cols := m.Dims()
	points := make([]Point, rows)
	for i := 0; i < rows; i++ {
		points[i].X = m.At(i, 0)
		if cols > 1 {
			points[i].Y = m.At(i, 1)
		}
	}
	return points
}

// Options configures a Projector.
type Options struct {
	// PCAComponents and UMAPComponents set the output dimensionality of the
	// default reducers. Zero means DefaultComponents.
	PCAComponents  int
	UMAPComponents int

	// PCA and UMAP replace the reducer in the matching slot. A nil UMAP
	// leaves a PCA reducer in the umap slot.
	PCA  Reducer
	UMAP Reducer

	// Logger receives fit diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns two PCA reducers with DefaultComponents outputs each.
func DefaultOptions() Options {
	return Options{
		PCAComponents:  DefaultComponents,
		UMAPComponents: DefaultComponents,
	}
}

// Projector fits two reducers on a reference batch and projects further
// batches into the fitted spaces.
type Projector struct {
	pca  Reducer
	umap Reducer

	reference Result
	features  int
	fitted    bool

	logger *slog.Logger
}

// New returns an unfitted Projector.
func New(opts Options) *Projector {
	if opts.PCAComponents == 0 {
		opts.PCAComponents = DefaultComponents
	}
	if opts.UMAPComponents == 0 {
		opts.UMAPComponents = DefaultComponents
	}

	p := &Projector{pca: opts.PCA, umap: opts.UMAP, logger: opts.Logger}
	if p.pca == nil {
		p.pca = NewPCA(opts.PCAComponents)
	}
	if p.umap == nil {
		p.umap = NewPCA(opts.UMAPComponents)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// IsFitted reports whether Fit has completed successfully.
func (p *Projector) IsFitted() bool { return p.fitted }

// Reducers returns the reducers in the pca and umap slots.
func (p *Projector) Reducers() (pca, umap Reducer) { return p.pca, p.umap }

// Fit fits both reducers on X and stores the projections of X as the
// reference embeddings. Fitting again replaces the previous fit.
//
// Input validation errors leave an earlier fit untouched. If a reducer
// fails after validation, the Projector is left unfitted.
func (p *Projector) Fit(X mat.Matrix) error {
	n, d, err := validateBatch(X)
	if err != nil {
		return err
	}
	if need := max(p.pca.Components(), p.umap.Components()); n < need {
		return fmt.Errorf("%w: %d samples for %d components", ErrInsufficientSamples, n, need)
	}

	p.fitted = false
	p.reference = Result{}

	pcaRef, err := fitSlot(slotPCA, p.pca, X)
	if err != nil {
		return err
	}
	umapRef, err := fitSlot(slotUMAP, p.umap, X)
	if err != nil {
		return err
	}

	p.reference = Result{PCA: pcaRef, UMAP: umapRef}
	p.features = d
	p.fitted = true
	metrics.ReferenceSamples.Set(float64(n))

	p.logger.Debug("[Projector] Fitted reference batch", "samples", n, "features", d)
	return nil
}

func fitSlot(slot string, r Reducer, X mat.Matrix) (*mat.Dense, error) {
	start := time.Now()
	if err := r.Fit(X); err != nil {
		return nil, fmt.Errorf("%s fit: %w", slot, err)
	}
	coords, err := r.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("%s fit: %w", slot, err)
	}
	metrics.ProjectorDuration.WithLabelValues(slot, "fit").Observe(time.Since(start).Seconds())
	return coords, nil
}

// ReferenceEmbeddings returns copies of the projections of the batch given
// to Fit. Modifying them does not affect the stored reference.
func (p *Projector) ReferenceEmbeddings() (Result, error) {
	if !p.fitted {
		return Result{}, ErrNotFitted
	}
	return Result{
		PCA:  mat.DenseCopyOf(p.reference.PCA),
		UMAP: mat.DenseCopyOf(p.reference.UMAP),
	}, nil
}

// Transform projects X into both fitted spaces. X must have the feature
// dimensionality of the fit batch.
func (p *Projector) Transform(X mat.Matrix) (Result, error) {
	if !p.fitted {
		return Result{}, fmt.Errorf("%w: call Fit first", ErrNotFitted)
	}
	if X != nil {
		if _, d := X.Dims(); d != p.features {
			return Result{}, fmt.Errorf("%w: got %d features, fitted on %d", ErrDimensionMismatch, d, p.features)
		}
	}

	pcaCoords, err := transformSlot(slotPCA, p.pca, X)
	if err != nil {
		return Result{}, err
	}
	umapCoords, err := transformSlot(slotUMAP, p.umap, X)
	if err != nil {
		return Result{}, err
	}
	return Result{PCA: pcaCoords, UMAP: umapCoords}, nil
}

func transformSlot(slot string, r Reducer, X mat.Matrix) (*mat.Dense, error) {
	start := time.Now()
	coords, err := r.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("%s transform: %w", slot, err)
	}
	metrics.ProjectorDuration.WithLabelValues(slot, "transform").Observe(time.Since(start).Seconds())
	return coords, nil
}
