package cache

import (
	"os"
	"time"

	"github.com/pkg/errors"
)


// Open returns a readable handle for relativePath ("<accession>/<filename>"
// under root_dir). If the file is already cached it is returned
// immediately; otherwise the cache coordinates a single fetch (deduplicated
// across concurrent callers by origin URL) and returns a handle to the
// fetched file on success, or to one of the three warning files on a
// recoverable failure mode. A non-nil error is returned only for path
// confinement violations and unresolvable origins.
func (c *Cache) Open(relativePath string, flags int) (*Handle, error) {
	cachePath, err := c.resolvePath(relativePath)
	if err != nil {
		return nil, err
	}

	if f, err := os.Open(cachePath); err == nil {
		c.metrics.Hits.Inc()
		return newHandle(c, f), nil
	}

	url, err := c.lookup.Lookup(relativePath)
	if err != nil {
		c.log.WithField("path", relativePath).WithError(err).Warn("origin unknown")
		return nil, errors.Wrapf(err, "cache: resolving origin for %q", relativePath)
	}
	c.metrics.Misses.Inc()

	return c.fetchDeduped(cachePath, url)
}

// fetchDeduped ensures at most one in-flight download per origin URL,
// with every caller (leader or follower) independently bounded by the
// configured timeout.
func (c *Cache) fetchDeduped(cachePath, url string) (*Handle, error) {
	release := c.trackInFlight(url)
	defer release()

	resultCh := c.group.DoChan(url, func() (interface{}, error) {
		return c.submit(cachePath, url), nil
	})

	select {
	case res := <-resultCh:
		return c.handleOutcome(res.Val.(outcome), cachePath)
	case <-time.After(c.opt.DownloadTimeout):
		// Our own wait elapsed. The worker may still complete in due
		// course (it is not cancelled); check once more for the file
		// having appeared in the interim before settling for the
		// timeout warning.
		if f, err := os.Open(cachePath); err == nil {
			return newHandle(c, f), nil
		}
		c.metrics.Timeouts.Inc()
		return c.warningHandle(c.warnings.timeout)
	}
}

// submit is run by exactly one caller per in-flight URL (the leader): it
// performs the non-blocking bounded-queue enqueue and then waits (again
// bounded by the timeout) for the worker's result.
func (c *Cache) submit(cachePath, url string) outcome {
	req := &downloadRequest{
		cachePath: cachePath,
		url:       url,
		resultCh:  make(chan outcome, 1),
	}

	select {
	case c.queue <- req:
	default:
		c.metrics.QueueFull.Inc()
		return outcome{kind: outcomeQueueFull}
	}

	select {
	case out := <-req.resultCh:
		return out
	case <-time.After(c.opt.DownloadTimeout):
		c.metrics.Timeouts.Inc()
		return outcome{kind: outcomeTimeout}
	}
}

func (c *Cache) handleOutcome(out outcome, cachePath string) (*Handle, error) {
	switch out.kind {
	case outcomeSuccess:
		f, err := os.Open(cachePath)
		if err != nil {
			// The worker reported success but the file is gone again
			// (e.g. removed out of band): fall back to the error
			// warning rather than surfacing an exception.
			return c.warningHandle(c.warnings.errorFile)
		}
		return newHandle(c, f), nil
	case outcomeQueueFull:
		return c.warningHandle(c.warnings.queueFull)
	case outcomeTimeout:
		if f, err := os.Open(cachePath); err == nil {
			return newHandle(c, f), nil
		}
		return c.warningHandle(c.warnings.timeout)
	default: // outcomeError
		return c.warningHandle(c.warnings.errorFile)
	}
}

func (c *Cache) warningHandle(path string) (*Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cache: opening warning file")
	}
	return newHandle(c, f), nil
}

func (c *Cache) trackInFlight(url string) (release func()) {
	c.inflightMu.Lock()
	c.inflight[url]++
	c.inflightMu.Unlock()
	return func() {
		c.inflightMu.Lock()
		c.inflight[url]--
		if c.inflight[url] <= 0 {
			delete(c.inflight, url)
		}
		c.inflightMu.Unlock()
	}
}

// InFlightCount reports how many callers are currently waiting on a fetch
// of url, for tests and introspection; it is always zero once every
// caller for that URL has been signalled.
func (c *Cache) InFlightCount(url string) int {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	return c.inflight[url]
}

// Attrs describes either real on-disk file attributes or the synthetic
// attributes of a not-yet-fetched file.
type Attrs struct {
	Exists  bool
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// GetAttr returns on-disk attributes for relativePath if the file exists,
// or synthetic attributes for a regular, zero-size, readable file with the
// current time otherwise — supporting a lazy stat before the first Open
// triggers a fetch.
func (c *Cache) GetAttr(relativePath string) (Attrs, error) {
	cachePath, err := c.resolvePath(relativePath)
	if err != nil {
		return Attrs{}, err
	}
	info, err := os.Stat(cachePath)
	if err != nil {
		now := time.Now()
		return Attrs{Exists: false, Size: 0, Mode: 0o444, ModTime: now}, nil
	}
	return Attrs{Exists: true, Size: info.Size(), Mode: 0o444, ModTime: info.ModTime()}, nil
}
