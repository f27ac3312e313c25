// Command sketchcount estimates the number of distinct lines read from stdin.
//
//	cat access.log | cut -d' ' -f1 | sketchcount -type cpc -lgk 12
//
// With -db and -name the sketch is merged with the one already stored under that name and the
// merged result is written back, so counts accumulate across runs.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/lytics/datasketches/cpc"
	"github.com/lytics/datasketches/hll"
	"github.com/lytics/datasketches/internal"
	"github.com/lytics/datasketches/internal/store"
)

type config struct {
	family    string
	lgK       int
	target    string
	seed      uint64
	numStdDev int
	dbPath    string
	name      string
	detail    bool
}

func main() {
	var cfg config
	var verbose bool
	flag.StringVar(&cfg.family, "type", "hll", "sketch family: hll or cpc")
	flag.IntVar(&cfg.lgK, "lgk", 0, "log2 of the sketch size (0 picks the family default)")
	flag.StringVar(&cfg.target, "tgt", "HLL_4", "hll register width: HLL_4, HLL_6 or HLL_8")
	flag.Uint64Var(&cfg.seed, "seed", cpc.DefaultSeed, "cpc hash seed")
	flag.IntVar(&cfg.numStdDev, "stddev", 2, "standard deviations for the bounds (1, 2 or 3)")
	flag.StringVar(&cfg.dbPath, "db", "", "sqlite database holding persisted sketches")
	flag.StringVar(&cfg.name, "name", "", "name of the persisted sketch to merge into (requires -db)")
	flag.BoolVar(&cfg.detail, "detail", false, "print the sketch summary")
	flag.BoolVar(&verbose, "v", false, "log representation changes to stderr")
	flag.Parse()

	if verbose {
		internal.DebugLogger.SetOutput(os.Stderr)
	}
	if err := run(context.Background(), cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("sketchcount: %v", err)
	}
}

// counter is the part of a sketch family the command needs.
type counter interface {
	add(line string)
	// merge folds a persisted image into the counter.
	merge(image []byte) error
	image() []byte
	report(w io.Writer, numStdDev int, detail bool) error
}

func run(ctx context.Context, cfg config, in io.Reader, out io.Writer) error {
	if cfg.name != "" && cfg.dbPath == "" {
		return errors.New("-name requires -db")
	}
	c, err := newCounter(cfg)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.dbPath != "" && cfg.name != "" {
		if st, err = store.Open(ctx, cfg.dbPath); err != nil {
			return err
		}
		defer st.Close()
		image, err := st.Load(ctx, cfg.name, cfg.family)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			if err := c.merge(image); err != nil {
				return fmt.Errorf("stored sketch %q: %w", cfg.name, err)
			}
		}
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		c.add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if st != nil {
		if err := st.Save(ctx, cfg.name, cfg.family, c.image()); err != nil {
			return err
		}
	}
	return c.report(out, cfg.numStdDev, cfg.detail)
}

func newCounter(cfg config) (counter, error) {
	switch cfg.family {
	case "hll":
		lgK := cfg.lgK
		if lgK == 0 {
			lgK = hll.DefaultLgK
		}
		tgt, err := parseTarget(cfg.target)
		if err != nil {
			return nil, err
		}
		u, err := hll.NewUnion(lgK)
		if err != nil {
			return nil, err
		}
		return &hllCounter{union: u, tgt: tgt}, nil
	case "cpc":
		lgK := cfg.lgK
		if lgK == 0 {
			lgK = cpc.DefaultLgK
		}
		s, err := cpc.NewSketch(lgK, cfg.seed)
		if err != nil {
			return nil, err
		}
		u, err := cpc.NewUnion(lgK, cfg.seed)
		if err != nil {
			return nil, err
		}
		return &cpcCounter{sketch: s, union: u}, nil
	}
	return nil, fmt.Errorf("unknown sketch type %q", cfg.family)
}

func parseTarget(s string) (hll.TargetType, error) {
	for _, tgt := range []hll.TargetType{hll.Hll4, hll.Hll6, hll.Hll8} {
		if tgt.String() == s {
			return tgt, nil
		}
	}
	return 0, fmt.Errorf("unknown register width %q", s)
}

// hllCounter feeds lines straight into a union; the union's gadget behaves as an HLL_8 sketch.
type hllCounter struct {
	union *hll.Union
	tgt   hll.TargetType
}

func (c *hllCounter) add(line string) { c.union.UpdateString(line) }

func (c *hllCounter) merge(image []byte) error {
	s, err := hll.Deserialize(image)
	if err != nil {
		return err
	}
	c.union.Update(s)
	return nil
}

func (c *hllCounter) result() *hll.Sketch {
	s, err := c.union.Result(c.tgt)
	if err != nil {
		// tgt was validated by parseTarget
		panic(err)
	}
	return s
}

func (c *hllCounter) image() []byte { return c.result().SerializeCompact(0) }

func (c *hllCounter) report(w io.Writer, numStdDev int, detail bool) error {
	s := c.result()
	lb, err := s.LowerBound(numStdDev)
	if err != nil {
		return err
	}
	ub, err := s.UpperBound(numStdDev)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%.0f\t[%.0f, %.0f]\n", s.Estimate(), lb, ub)
	if detail {
		fmt.Fprint(w, s.String())
	}
	return nil
}

// cpcCounter keeps the lines in their own sketch so the HIP estimate survives when nothing is
// stored; a union is only involved once a persisted image has to be merged.
type cpcCounter struct {
	sketch *cpc.Sketch
	union  *cpc.Union
	merged bool
}

func (c *cpcCounter) add(line string) { c.sketch.UpdateString(line) }

func (c *cpcCounter) merge(image []byte) error {
	s, err := cpc.Deserialize(image, c.union.Seed())
	if err != nil {
		return err
	}
	c.merged = true
	return c.union.Update(s)
}

func (c *cpcCounter) result() (*cpc.Sketch, error) {
	if !c.merged {
		return c.sketch, nil
	}
	u := c.union.Copy()
	if err := u.Update(c.sketch); err != nil {
		return nil, err
	}
	return u.Result(), nil
}

func (c *cpcCounter) image() []byte {
	s, err := c.result()
	if err != nil {
		panic(err)
	}
	return s.Serialize()
}

func (c *cpcCounter) report(w io.Writer, numStdDev int, detail bool) error {
	s, err := c.result()
	if err != nil {
		return err
	}
	lb, err := s.LowerBound(numStdDev)
	if err != nil {
		return err
	}
	ub, err := s.UpperBound(numStdDev)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%.0f\t[%.0f, %.0f]\n", s.Estimate(), lb, ub)
	if detail {
		fmt.Fprint(w, s.String())
	}
	return nil
}
