package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/ilasm/cache"
	"github.com/chazu/ilasm/ilfile"
	"github.com/chazu/ilasm/image"
	"github.com/chazu/ilasm/manifest"
	"github.com/chazu/ilasm/metadata"
	"github.com/chazu/ilasm/methodbody"
)

// assembled is one finished method.
type assembled struct {
	Name     string
	Path     string
	Body     []byte
	LocalSig metadata.Token
	Cached   bool
}

// result is the outcome of one assembler run.
type result struct {
	Methods   []assembled
	CacheHits int
	BuildID   string
	Sigs      *metadata.Context
}

// job pairs a parsed method with the file it came from.
type job struct {
	path   string
	method *ilfile.Method
}

// listingFiles returns the listings named on the command line, expanding
// directories, or the manifest's source files when args is empty. The
// result is sorted by path with duplicates removed; this order decides
// StandAloneSig row numbering.
func listingFiles(m *manifest.Manifest, args []string) ([]string, error) {
	if len(args) == 0 {
		return m.SourceFiles()
	}
	var files []string
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			files = append(files, absPath(arg))
			continue
		}
		sub := *m
		sub.Source.Dirs = []string{absPath(arg)}
		found, err := sub.SourceFiles()
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// parseListings parses every file and rejects method names defined in
// more than one place.
func parseListings(files []string) ([]job, error) {
	var jobs []job
	var errs []error
	seen := make(map[string]string)
	for _, path := range files {
		f, err := ilfile.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range f.Methods {
			if prev, dup := seen[m.Name]; dup {
				errs = append(errs, &ilfile.Error{
					Path: path,
					Pos:  m.Pos,
					Err:  fmt.Errorf("%w: method %q already defined in %s", image.ErrDuplicateMethod, m.Name, prev),
				})
				continue
			}
			seen[m.Name] = path
			jobs = append(jobs, job{path: path, method: m})
		}
	}
	return jobs, errors.Join(errs...)
}

// assemble builds every method in files and writes the image. When full
// is set the listings are the whole project and stale cache rows are
// pruned afterwards.
func assemble(m *manifest.Manifest, files []string, full bool) (*result, error) {
	jobs, err := parseListings(files)
	if err != nil {
		return nil, err
	}

	w := image.NewWriter(m.Project.Name)
	if m.Assembler.InitLocals {
		w.SetFlags(image.FlagInitLocals)
	}
	res := &result{
		Methods: make([]assembled, len(jobs)),
		BuildID: w.BuildID(),
		Sigs:    metadata.NewContext(),
	}

	// Register local signatures in listing order so StandAloneSig rows do
	// not depend on worker scheduling.
	builders := make([]methodbody.Builder, len(jobs))
	for i, j := range jobs {
		b, err := j.method.Builder(j.path)
		if err != nil {
			return nil, err
		}
		if !m.Assembler.InitLocals {
			b = b.InitLocals(false)
		}
		if locals := b.Locals(); len(locals) > 0 {
			if _, err := res.Sigs.AddLocalSignature(locals); err != nil {
				return nil, &ilfile.Error{Path: j.path, Pos: j.method.Pos, Err: err}
			}
		}
		builders[i] = b
	}

	var c *cache.Cache
	if m.Cache.Enabled {
		if c, err = cache.Open(m.CachePath()); err != nil {
			log().Warningf("cache disabled: %v", err)
			c = nil
		} else {
			defer c.Close()
		}
	}

	workers := m.Assembler.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := assembleOne(c, jobs[i], builders[i], res, m.Assembler.InitLocals)
			if err != nil {
				return err
			}
			res.Methods[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, a := range res.Methods {
		if a.Cached {
			res.CacheHits++
		}
		if err := w.AddRaw(a.Name, a.Body, uint32(a.LocalSig)); err != nil {
			return nil, err
		}
	}
	if err := w.WriteFile(m.OutputPath(), res.Sigs, m.Output.Mmap); err != nil {
		return nil, err
	}

	if c != nil && full {
		if _, err := c.Prune(res.BuildID); err != nil {
			log().Warningf("%v", err)
		}
	}
	return res, nil
}

// assembleOne restores a method from the cache or builds it and stores
// the result.
func assembleOne(c *cache.Cache, j job, b methodbody.Builder, res *result, initLocals bool) (assembled, error) {
	out := assembled{Name: j.method.Name, Path: j.path}

	var key string
	if c != nil {
		var err error
		if key, err = cache.Key(j.method, initLocals); err != nil {
			return out, err
		}
		e, err := c.Get(key)
		switch {
		case err == nil:
			if out.Body, out.LocalSig, err = e.Restore(res.Sigs); err == nil {
				out.Cached = true
				if err := c.Touch(key, res.BuildID); err != nil {
					log().Warningf("%v", err)
				}
				log().Debugf("%s: cache hit", out.Name)
				return out, nil
			}
			log().Warningf("%s: discarding cached body: %v", out.Name, err)
		case !errors.Is(err, cache.ErrMiss):
			log().Warningf("%s: %v", out.Name, err)
		}
	}

	body, err := b.Build(res.Sigs)
	if err != nil {
		var perr *ilfile.Error
		if !errors.As(err, &perr) {
			err = &ilfile.Error{Path: j.path, Pos: j.method.Pos, Err: err}
		}
		return out, fmt.Errorf("%s: %w", out.Name, err)
	}
	out.Body, out.LocalSig = body.Bytes, body.LocalSig
	if c != nil {
		if err := c.PutBody(key, res.BuildID, body, res.Sigs); err != nil {
			log().Warningf("%s: %v", out.Name, err)
		}
	}
	log().Debugf("%s: %d bytes, max stack %d", out.Name, len(body.Bytes), body.MaxStack)
	return out, nil
}
