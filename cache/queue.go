package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// outcomeKind enumerates the ways a queued download can resolve.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeQueueFull
	outcomeTimeout
	outcomeError
)

type outcome struct {
	kind outcomeKind
}

// downloadRequest is one tuple carried by the bounded queue: the local
// destination, the origin URL, and a capacity-one result channel so a
// worker can always deliver without blocking on a caller that has given up.
type downloadRequest struct {
	cachePath string
	url       string
	resultCh  chan outcome
}

// runWorker is the worker pool loop. It dequeues
// one request at a time, FIFO, and processes it to completion before taking
// the next; workers may finish out of order relative to each other since
// fetch durations vary, which is fine because results are delivered on
// per-request channels.
func (c *Cache) runWorker(id int) {
	defer c.workersWG.Done()
	log := c.log.WithField("worker", id)

	for req := range c.queue {
		c.process(log, req)
	}
}

func (c *Cache) process(log *logrus.Entry, req *downloadRequest) {
	log = log.WithField("url", req.url)

	// Another worker may have completed the same file already (e.g. a
	// prior request for the identical URL that lost the dedup race
	// before this in-flight registry existed, or a retry after an
	// out-of-band deletion); re-check before fetching again.
	if _, err := os.Stat(req.cachePath); err == nil {
		log.Debug("cache path appeared before worker ran")
		req.resultCh <- outcome{kind: outcomeSuccess}
		return
	}

	if err := os.MkdirAll(filepath.Dir(req.cachePath), 0o755); err != nil {
		log.WithError(err).Error("failed to create cache directories")
		req.resultCh <- outcome{kind: outcomeError}
		return
	}

	started := time.Now()
	tmpPath, err := c.download(req.url)
	if err != nil {
		log.WithError(err).Warn("download failed")
		req.resultCh <- outcome{kind: outcomeError}
		return
	}

	if err := os.Rename(tmpPath, req.cachePath); err != nil {
		log.WithError(err).Error("failed to move downloaded file into place")
		_ = os.Remove(tmpPath)
		req.resultCh <- outcome{kind: outcomeError}
		return
	}

	if c.ledger != nil {
		info, statErr := os.Stat(req.cachePath)
		if statErr == nil {
			c.ledger.Record(FetchRecord{
				URL:        req.url,
				CachePath:  req.cachePath,
				Size:       info.Size(),
				Duration:   time.Since(started),
				CompletedAt: time.Now(),
			})
		}
	}

	log.WithField("duration", time.Since(started)).Debug("download complete")
	req.resultCh <- outcome{kind: outcomeSuccess}
}

// download fetches url into a temporary file under root/tmp, named with a
// prefix derived from the URL's final path segment, and returns its path.
// The caller is responsible for renaming it into place.
func (c *Cache) download(url string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return "", err
		}
	}

	tmp, err := os.CreateTemp(filepath.Join(c.rootDir, "tmp"), tempPrefix(url)+"_*.tmp")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.opt.DownloadTimeout)
	defer cancel()

	if err := c.fetch.Fetch(ctx, url, tmp); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func tempPrefix(url string) string {
	i := len(url) - 1
	for i >= 0 && url[i] != '/' {
		i--
	}
	prefix := url[i+1:]
	if prefix == "" {
		return "download"
	}
	return prefix
}
