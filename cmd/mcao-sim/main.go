// Command mcao-sim runs a synthetic multi-conjugate adaptive optics
// tomography experiment: it draws turbulence confined to chosen altitudes,
// generates noisy multi-guide-star measurements, inverts them with the
// least-squares and the sparse solver, and writes comparison plots of the
// original and recovered coefficients.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/hammal/mcao"
	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/geometry"
	"github.com/hammal/mcao/projection"
	"github.com/hammal/mcao/reconstruct"
	"github.com/hammal/mcao/tomography"
	"github.com/hammal/mcao/turbulence"
)

func main() {
	var (
		nStars     = flag.Int("stars", 3, "number of guide stars")
		nZernike   = flag.Int("zernike", 30, "number of Zernike modes")
		fov        = flag.Float64("fov", 60, "field of view [arcsec]")
		dTel       = flag.Float64("dtel", 4, "telescope diameter [m]")
		r0         = flag.Float64("r0", 0.15, "Fried parameter [m]")
		outerScale = flag.Float64("l0", 0, "outer scale [m]; 0 selects Kolmogorov statistics")
		maxHeight  = flag.Float64("max-height", 30, "top of the 1 km height grid [km]")
		keepFlag   = flag.String("keep", "0,4,16", "heights [km] that carry turbulence, comma separated")
		noise      = flag.Float64("noise", 0.05, "measurement noise standard deviation")
		lambda     = flag.Float64("lambda", 1e-5, "sparse regularization weight")
		resolution = flag.Int("resolution", projection.DefaultResolution, "numerical projection grid resolution")
		analytic   = flag.Bool("analytic", false, "use the analytic projection basis change")
		cacheDir   = flag.String("cache", "matrices", "projection cache directory; empty disables caching")
		outDir     = flag.String("out", ".", "directory for the comparison plots")
		seed       = flag.Uint64("seed", 123, "random seed")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(config{
		nStars:     *nStars,
		nZernike:   *nZernike,
		fov:        *fov,
		dTel:       *dTel,
		r0:         *r0,
		outerScale: *outerScale,
		maxHeight:  *maxHeight,
		keep:       *keepFlag,
		noise:      *noise,
		lambda:     *lambda,
		resolution: *resolution,
		analytic:   *analytic,
		cacheDir:   *cacheDir,
		outDir:     *outDir,
		seed:       *seed,
	}, log); err != nil {
		log.Error("experiment failed", "err", err)
		os.Exit(1)
	}
}

type config struct {
	nStars, nZernike int
	fov, dTel, r0    float64
	outerScale       float64
	maxHeight        float64
	keep             string
	noise, lambda    float64
	resolution       int
	analytic         bool
	cacheDir, outDir string
	seed             uint64
}

func run(c config, log *slog.Logger) error {
	heights := make([]float64, int(c.maxHeight)+1)
	for i := range heights {
		heights[i] = float64(i)
	}
	keep, err := parseHeights(c.keep)
	if err != nil {
		return err
	}

	var proj projection.Projector
	if c.analytic {
		proj = projection.NewAnalytic()
	} else {
		proj = projection.NewNumerical(c.resolution)
	}

	session, err := mcao.NewSession(geometry.Config{
		NStars:   c.nStars,
		NZernike: c.nZernike,
		FOV:      c.fov,
		Heights:  heights,
		DTel:     c.dTel,
	}, mcao.Options{
		Projector: proj,
		CacheDir:  c.cacheDir,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	stats := turbulence.Stats{Model: turbulence.Kolmogorov, R0: c.r0}
	if c.outerScale > 0 {
		stats = turbulence.Stats{Model: turbulence.VonKarman, R0: c.r0, OuterScale: c.outerScale}
	}

	src := rand.NewPCG(c.seed, c.seed)
	original, err := session.GenerateTurbulence(stats, keep, src)
	if err != nil {
		return err
	}
	b, err := session.Measure(original)
	if err != nil {
		return err
	}
	tomography.AddNoise(b, c.noise, src)

	ls, err := session.SolveLeastSquares(b, true)
	if err != nil {
		return err
	}
	sparse, err := session.SolveSparse(b, c.lambda, reconstruct.SparseOptions{Accelerate: true})
	if err != nil && !errors.Is(err, errs.ErrNonConvergence) {
		return err
	}

	log.Info("estimates ready",
		"least_squares_residual", ls.Residual,
		"sparse_residual", sparse.Residual,
		"sparse_iterations", sparse.Iterations,
	)

	if err := writePlot(c.outDir, "least-squares.png", "Least squares", original.Flatten(), ls.Flatten()); err != nil {
		return err
	}
	return writePlot(c.outDir, "sparse.png", "Sparse (L1)", original.Flatten(), sparse.Flatten())
}

func parseHeights(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	res := make([]float64, 0, len(parts))
	for _, p := range parts {
		h, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse height %q: %w", p, err)
		}
		res = append(res, h)
	}
	return res, nil
}

func writePlot(dir, file, title string, original, estimate *mat.VecDense) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "coefficient index"
	p.Y.Label.Text = "value"

	if err := plotutil.AddLines(p,
		"Original", points(original),
		"Estimate", points(estimate),
	); err != nil {
		return err
	}
	return p.Save(12*vg.Inch, 5*vg.Inch, dir+"/"+file)
}

func points(v *mat.VecDense) plotter.XYs {
	pts := make(plotter.XYs, v.Len())
	for i := range pts {
		pts[i].X = float64(i)
		pts[i].Y = v.AtVec(i)
	}
	return pts
}
