package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"imagedupes/internal/fingerprint"
	"imagedupes/internal/hash"
	"imagedupes/internal/models"
)

// Skip records an input that produced no fingerprint.
type Skip struct {
	Path string
	Err  error
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %v", s.Path, s.Err)
}

// Result is the outcome of a scan. Table is frozen and safe to share.
type Result struct {
	Table   *fingerprint.Table
	Images  map[string]*models.ImageInfo
	Skipped []Skip
	Total   int
}

// Scanner finds images in folders and fingerprints them
type Scanner struct {
	hasher     *hash.Hasher
	workers    int
	timeout    time.Duration
	recursive  bool
	progressFn func(scanned, total int, current string)
	log        logrus.FieldLogger
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout sets the timeout for hashing each image
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		s.timeout = d
	}
}

// WithProgress sets a progress callback. It is called once per file,
// including files that end up skipped.
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(s *Scanner) {
		s.progressFn = fn
	}
}

// WithRecursive descends into subdirectories
func WithRecursive(recursive bool) Option {
	return func(s *Scanner) {
		s.recursive = recursive
	}
}

// WithHasher replaces the default hasher
func WithHasher(h *hash.Hasher) Option {
	return func(s *Scanner) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithLogger sets the logger used for skip warnings
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// NewScanner creates a new Scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		hasher:  hash.NewHasher(),
		workers: runtime.NumCPU(),
		timeout: 30 * time.Second,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindImages lists supported image files under dirs, sorted and without
// duplicates. Hidden files and directories are ignored. Directories that
// cannot be read are returned as skips instead of failing the whole call.
func FindImages(dirs []string, recursive bool) ([]string, []Skip) {
	seen := make(map[string]bool)
	var (
		paths   []string
		skipped []Skip
	)

	for _, dir := range dirs {
		root, err := filepath.Abs(dir)
		if err != nil {
			skipped = append(skipped, Skip{Path: dir, Err: err})
			continue
		}
		st, err := os.Stat(root)
		if err != nil {
			skipped = append(skipped, Skip{Path: dir, Err: fmt.Errorf("unable to access directory: %w", err)})
			continue
		}
		if !st.IsDir() {
			skipped = append(skipped, Skip{Path: dir, Err: errors.New("not a directory")})
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				skipped = append(skipped, Skip{Path: path, Err: err})
				return nil
			}
			if path != root && isHidden(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !hash.IsSupportedImage(path) {
				return nil
			}
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			skipped = append(skipped, Skip{Path: dir, Err: fmt.Errorf("unable to access directory: %w", err)})
		}
	}

	sort.Strings(paths)
	return paths, skipped
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ScanFolders discovers images in folders and fingerprints them. Per-image
// failures end up in Result.Skipped; only cancellation of ctx aborts the scan.
func (s *Scanner) ScanFolders(ctx context.Context, folders []string) (*Result, error) {
	paths, skipped := FindImages(folders, s.recursive)
	for _, sk := range skipped {
		s.log.WithField("path", sk.Path).WithError(sk.Err).Warn("skipping directory entry")
	}

	res, err := s.ScanPaths(ctx, paths)
	if err != nil {
		return nil, err
	}
	res.Skipped = append(skipped, res.Skipped...)
	return res, nil
}

// ScanPaths fingerprints the given files in a worker pool.
func (s *Scanner) ScanPaths(ctx context.Context, paths []string) (*Result, error) {
	var (
		images    = make(map[string]*models.ImageInfo, len(paths))
		skipped   []Skip
		resultsMu sync.Mutex
		scanned   int64
		total     = len(paths)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			info, err := s.hashOne(gctx, path)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}

			resultsMu.Lock()
			if err != nil {
				skipped = append(skipped, Skip{Path: path, Err: err})
			} else {
				images[path] = info
			}
			resultsMu.Unlock()

			if err != nil {
				s.log.WithField("path", path).WithError(err).Warn("skipping image")
			}

			n := atomic.AddInt64(&scanned, 1)
			if s.progressFn != nil {
				s.progressFn(int(n), total, path)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make(map[string]fingerprint.Fingerprint, len(images))
	for path, info := range images {
		entries[path] = info.Fingerprint
	}
	table, err := fingerprint.NewTable(entries)
	if err != nil {
		return nil, err
	}

	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })

	return &Result{
		Table:   table,
		Images:  images,
		Skipped: skipped,
		Total:   total,
	}, nil
}

func (s *Scanner) hashOne(ctx context.Context, path string) (*models.ImageInfo, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.hasher.HashImageContext(ctx, path)
}
