// Package tomography assembles the global system matrix of a multi-guide-
// star configuration and applies it as the forward measurement operator.
package tomography

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/hammal/mcao/geometry"
	"github.com/hammal/mcao/matcache"
	"github.com/hammal/mcao/projection"
	"gonum.org/v1/gonum/mat"
)

// Assembler computes the full projection tensor of a configuration and
// stacks it into the system matrix. The per-(layer, star) projection is the
// dominant setup cost, so the assembler consults the cache first and
// parallelizes the computation on a miss.
type Assembler struct {
	Config    geometry.Config
	Projector projection.Projector
	// Cache is optional; when nil every tensor is computed from scratch.
	Cache *matcache.Store
	// Logger is optional.
	Logger *slog.Logger
	// Workers bounds the parallel projection computations; zero selects
	// GOMAXPROCS.
	Workers int
}

// Tensor returns the projection tensor of the configuration, reusing a
// cached superset record when one exists and storing a newly computed
// tensor otherwise.
func (a *Assembler) Tensor() (*projection.Tensor, error) {
	if err := a.Config.Validate(); err != nil {
		return nil, err
	}
	log := a.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	key := matcache.KeyFromConfig(a.Config)
	if a.Cache != nil {
		if tensor, ok := a.Cache.Find(key); ok {
			log.Info("projection tensor found in cache")
			return tensor, nil
		}
		log.Info("projection tensor not in cache, computing")
	}

	tensor, err := a.compute()
	if err != nil {
		return nil, err
	}
	if a.Cache != nil {
		if _, err := a.Cache.Store(key, tensor); err != nil {
			return nil, err
		}
	}
	return tensor, nil
}

// compute fills the tensor in parallel. Each worker owns its geometry
// triple and writes to a disjoint block, so no synchronization beyond the
// wait group is needed.
func (a *Assembler) compute() (*projection.Tensor, error) {
	cfg := a.Config
	tensor := projection.NewTensor(cfg.NZernike, cfg.NHeights(), cfg.NStars)
	triples := cfg.Triples()

	workers := a.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Buffer all jobs up front so a failing worker never leaves the
	// producer blocked.
	type job struct{ height, star int }
	jobs := make(chan job, cfg.NHeights()*cfg.NStars)
	for h := 0; h < cfg.NHeights(); h++ {
		for s := 0; s < cfg.NStars; s++ {
			jobs <- job{h, s}
		}
	}
	close(jobs)
	errc := make(chan error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for jb := range jobs {
				tr := triples[jb.height][jb.star]
				block, err := a.Projector.Project(cfg.NZernike, tr.Magnification, tr.Scale, tr.Rotation)
				if err != nil {
					errc <- fmt.Errorf("tomography: project height %d star %d: %w", jb.height, jb.star, err)
					return
				}
				tensor.SetBlock(jb.height, jb.star, block)
			}
		}()
	}
	wg.Wait()
	close(errc)
	if err := <-errc; err != nil {
		return nil, err
	}
	return tensor, nil
}

// Assemble returns the stacked system matrix of the configuration.
func (a *Assembler) Assemble() (*mat.Dense, error) {
	tensor, err := a.Tensor()
	if err != nil {
		return nil, err
	}
	return Stack(tensor), nil
}

// Stack places every (height, star) projection block at its block position
// in the system matrix: block row = star, block column = height. The matrix
// maps layer-major coefficient vectors to star-major measurement vectors.
func Stack(t *projection.Tensor) *mat.Dense {
	nz := t.NZernike
	res := mat.NewDense(t.NStars*nz, t.NHeights*nz, nil)
	for h := 0; h < t.NHeights; h++ {
		for s := 0; s < t.NStars; s++ {
			res.Slice(s*nz, (s+1)*nz, h*nz, (h+1)*nz).(*mat.Dense).Copy(t.Block(h, s))
		}
	}
	return res
}
