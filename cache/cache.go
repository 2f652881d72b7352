// Package cache implements the on-demand download cache: at-most-one
// in-flight fetch per origin URL, a bounded in-flight queue with explicit
// backpressure surfaced as readable placeholder files, and file handles
// whose bytes are served from local disk.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/bewt85/genbankfs/catalog"
	"github.com/bewt85/genbankfs/lib/metrics"
)

const (
	DefaultMaxQueue             = 100
	DefaultConcurrentDownloads  = 2
	DefaultDownloadTimeout      = 600 * time.Second
	DefaultHTTPConnectTimeout   = 600 * time.Second
)

// ErrPathEscapesRoot is returned when a requested relative path resolves
// outside root_dir. This is a hard error, never a warning file.
var ErrPathEscapesRoot = errors.New("cache: path escapes root directory")

// Options configures a Cache at construction time.
type Options struct {
	RootDir              string
	MaxQueue             int
	ConcurrentDownloads  int
	DownloadTimeout      time.Duration
	// RatePerSecond optionally throttles outbound fetches; zero means
	// unlimited.
	RatePerSecond float64
	// LedgerPath, if non-empty, enables the bbolt-backed fetch ledger.
	LedgerPath string
}

func (o *Options) setDefaults() {
	if o.MaxQueue <= 0 {
		o.MaxQueue = DefaultMaxQueue
	}
	if o.ConcurrentDownloads <= 0 {
		o.ConcurrentDownloads = DefaultConcurrentDownloads
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = DefaultDownloadTimeout
	}
}

// Fetcher retrieves the bytes at url and writes them to dest. Implementations
// must map HTTP 401/403/404 and any transport error to a non-nil error; the
// worker maps any such error to the "error" warning outcome, never surfacing
// it up through read.
type Fetcher interface {
	Fetch(ctx context.Context, url string, dest *os.File) error
}

// Cache is the on-demand download cache. The zero value is not usable;
// construct with New.
type Cache struct {
	opt     Options
	rootDir string // realpath of opt.RootDir, resolved once at construction

	lookup *catalog.URLLookup
	fetch  Fetcher
	limiter *rate.Limiter

	queue chan *downloadRequest
	group singleflight.Group

	inflightMu sync.Mutex
	inflight   map[string]int

	warnings *warningFiles
	ledger   *Ledger
	metrics  *metrics.Cache

	// ioLock serializes seek+read pairs on handles shared across
	// goroutines.
	ioLock sync.Mutex

	workersWG sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}

	log *logrus.Entry
}

// New constructs a Cache rooted at opt.RootDir, starts its worker pool, and
// materializes the three warning files. RootDir (and its tmp/
// subdirectory) is created if absent and must be writable; construction
// failure here is fail-fast rather than deferred to the first request.
func New(opt Options, lookup *catalog.URLLookup, fetch Fetcher) (*Cache, error) {
	opt.setDefaults()

	realRoot, err := ensureRootDir(opt.RootDir)
	if err != nil {
		return nil, errors.Wrap(err, "cache: preparing root directory")
	}

	warnings, err := newWarningFiles(realRoot, opt.MaxQueue)
	if err != nil {
		return nil, errors.Wrap(err, "cache: materializing warning files")
	}

	var ledger *Ledger
	if opt.LedgerPath != "" {
		ledger, err = OpenLedger(opt.LedgerPath)
		if err != nil {
			return nil, errors.Wrap(err, "cache: opening fetch ledger")
		}
	}

	var limiter *rate.Limiter
	if opt.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opt.RatePerSecond), 1)
	}

	c := &Cache{
		opt:      opt,
		rootDir:  realRoot,
		lookup:   lookup,
		fetch:    fetch,
		limiter:  limiter,
		queue:    make(chan *downloadRequest, opt.MaxQueue),
		inflight: make(map[string]int),
		warnings: warnings,
		ledger:   ledger,
		metrics:  metrics.NewCache(),
		closed:   make(chan struct{}),
		log:      logrus.WithField("component", "cache"),
	}

	for i := 0; i < opt.ConcurrentDownloads; i++ {
		c.workersWG.Add(1)
		go c.runWorker(i)
	}

	c.log.WithField("root", realRoot).WithField("workers", opt.ConcurrentDownloads).
		WithField("max_queue", opt.MaxQueue).Info("download cache started")
	return c, nil
}

// Close stops accepting new work and waits for in-flight workers to drain.
// Already-queued requests are still serviced.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		close(c.queue)
		c.workersWG.Wait()
		if c.ledger != nil {
			_ = c.ledger.Close()
		}
	})
	return nil
}

func ensureRootDir(root string) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(real, "tmp"), 0o755); err != nil {
		return "", err
	}
	return real, nil
}

// resolvePath joins root with relativePath and enforces the path
// confinement invariant: the resolved path must not escape rootDir.
func (c *Cache) resolvePath(relativePath string) (string, error) {
	joined := filepath.Join(c.rootDir, relativePath)
	// The target need not exist yet (a first-time fetch), so confinement
	// is checked against the lexically-cleaned join plus a defensive
	// containment check rather than requiring EvalSymlinks to succeed.
	if !withinRoot(c.rootDir, joined) {
		return "", errors.Wrapf(ErrPathEscapesRoot, "%q", relativePath)
	}
	// If the path (or a leading portion of it) already exists, resolve
	// symlinks too, since a symlink planted under the root could still
	// point outside it.
	if real, err := filepath.EvalSymlinks(joined); err == nil {
		if !withinRoot(c.rootDir, real) {
			return "", errors.Wrapf(ErrPathEscapesRoot, "%q", relativePath)
		}
	}
	return joined, nil
}

func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) || rel == ".."
}
