// Package mcao reconstructs the three-dimensional structure of atmospheric
// turbulence from multi-guide-star wavefront measurements. A Session ties
// the geometric forward model, the turbulence statistics and the two
// inversion methods together around one immutable configuration.
package mcao

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/hammal/mcao/errs"
	"github.com/hammal/mcao/geometry"
	"github.com/hammal/mcao/matcache"
	"github.com/hammal/mcao/projection"
	"github.com/hammal/mcao/reconstruct"
	"github.com/hammal/mcao/tomography"
	"github.com/hammal/mcao/turbulence"
	"gonum.org/v1/gonum/mat"
)

// Options configures the collaborators of a session. The zero value selects
// a numerical projector at the default resolution, no cache and no logging.
type Options struct {
	// Projector overrides the default numerical projector.
	Projector projection.Projector
	// CacheDir enables the disk-backed projection cache when non-empty.
	CacheDir string
	// Logger enables diagnostics when non-nil.
	Logger *slog.Logger
	// Workers bounds the parallel projection computations.
	Workers int
}

// Session is one tomography run: a fixed configuration, its lazily
// assembled system matrix, the most recent turbulence statistics and the
// estimates produced so far. The projection and covariance computations are
// pure; all session state is written exactly once per call that produces
// it.
type Session struct {
	cfg geometry.Config
	asm *tomography.Assembler
	log *slog.Logger

	stacked *mat.Dense
	cov     *mat.SymDense

	original  *turbulence.Realization
	estimates map[string]*reconstruct.Estimate
}

// NewSession validates the configuration and prepares a session.
func NewSession(cfg geometry.Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	proj := opts.Projector
	if proj == nil {
		proj = projection.NewNumerical(0)
	}

	var cache *matcache.Store
	if opts.CacheDir != "" {
		var err error
		cache, err = matcache.NewStore(opts.CacheDir, log)
		if err != nil {
			return nil, err
		}
	}

	log.Info("tomography session",
		"zernike_modes", cfg.NZernike,
		"heights_km", cfg.Heights,
		"fov_arcsec", cfg.FOV,
		"stars", cfg.NStars,
		"telescope_diameter_m", cfg.DTel,
	)

	return &Session{
		cfg: cfg,
		asm: &tomography.Assembler{
			Config:    cfg,
			Projector: proj,
			Cache:     cache,
			Logger:    log,
			Workers:   opts.Workers,
		},
		log:       log,
		estimates: make(map[string]*reconstruct.Estimate),
	}, nil
}

// Config returns the session configuration.
func (s *Session) Config() geometry.Config { return s.cfg }

// SystemMatrix returns the stacked system matrix, assembling it on first
// use. Repeated calls return the same matrix.
func (s *Session) SystemMatrix() (*mat.Dense, error) {
	if s.stacked == nil {
		stacked, err := s.asm.Assemble()
		if err != nil {
			return nil, err
		}
		s.stacked = stacked
	}
	return s.stacked, nil
}

// GenerateTurbulence draws a fresh realization from the given statistics,
// one independent layer draw per configured height. Heights listed in
// keepHeights [km] keep their draw; all other layers are zeroed. A nil
// keepHeights keeps every layer. The covariance is retained for the
// regularized least-squares solve, and the draw is retained as the session
// original.
func (s *Session) GenerateTurbulence(stats turbulence.Stats, keepHeights []float64, src rand.Source) (*turbulence.Realization, error) {
	cov, err := turbulence.Covariance(s.cfg.NZernike, s.cfg.DTel, stats)
	if err != nil {
		return nil, err
	}

	var keep []int
	if keepHeights != nil {
		keep = make([]int, 0, len(keepHeights))
		for _, h := range keepHeights {
			idx := -1
			for i, ch := range s.cfg.Heights {
				if ch == h {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("mcao: keep height %g km not in configuration: %w",
					h, errs.ErrInvalidParameter)
			}
			keep = append(keep, idx)
		}
	}

	r, err := turbulence.Draw(cov, s.cfg.NHeights(), keep, src)
	if err != nil {
		return nil, err
	}
	s.cov = cov
	s.original = r
	return r, nil
}

// Original returns the most recent turbulence draw, or nil.
func (s *Session) Original() *turbulence.Realization { return s.original }

// Covariance returns the covariance of the most recent turbulence
// statistics, or nil.
func (s *Session) Covariance() *mat.SymDense { return s.cov }

// Measure applies the system matrix to a realization. Measurement noise is
// the caller's separate step, e.g. through tomography.AddNoise.
func (s *Session) Measure(r *turbulence.Realization) (*mat.VecDense, error) {
	stacked, err := s.SystemMatrix()
	if err != nil {
		return nil, err
	}
	return tomography.Measure(stacked, r), nil
}

// SolveLeastSquares inverts the measurement with the (optionally Tikhonov
// regularized) normal-equations solve and records the estimate under
// reconstruct.MethodLeastSquares. The regularized solve requires a prior
// GenerateTurbulence call to provide the covariance.
func (s *Session) SolveLeastSquares(b mat.Vector, regularize bool) (*reconstruct.Estimate, error) {
	stacked, err := s.SystemMatrix()
	if err != nil {
		return nil, err
	}
	est, err := reconstruct.LeastSquares(stacked, b, s.cov, s.cfg.NHeights(), regularize)
	if err != nil {
		return nil, err
	}
	s.estimates[est.Method] = est
	s.log.Info("least-squares solve", "regularized", regularize, "residual", est.Residual)
	return est, nil
}

// SolveSparse inverts the measurement with the accelerated proximal-
// gradient L1 solver and records the estimate under
// reconstruct.MethodSparse. When the solver hits its iteration cap the best
// iterate is still recorded and returned together with ErrNonConvergence.
func (s *Session) SolveSparse(b mat.Vector, lambda float64, opts reconstruct.SparseOptions) (*reconstruct.Estimate, error) {
	stacked, err := s.SystemMatrix()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	est, err := reconstruct.Sparse(stacked, b, lambda, s.cfg.NHeights(), opts)
	if est != nil {
		s.estimates[est.Method] = est
		s.log.Info("sparse solve",
			"iterations", est.Iterations,
			"residual", est.Residual,
			"converged", est.Converged,
		)
	}
	return est, err
}

// Estimate returns the recorded estimate of the given method, if any.
func (s *Session) Estimate(method string) (*reconstruct.Estimate, bool) {
	est, ok := s.estimates[method]
	return est, ok
}
