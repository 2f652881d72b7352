package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bewt85/genbankfs/catalog"
)

const fakeFileContents = "This is a fake file"

// triggeredFetcher blocks every Fetch call until trigger is closed, then
// writes the same fixed payload every time.
type triggeredFetcher struct {
	trigger chan struct{}

	mu    sync.Mutex
	calls int
}

func newTriggeredFetcher() *triggeredFetcher {
	return &triggeredFetcher{trigger: make(chan struct{})}
}

func (f *triggeredFetcher) fire() {
	close(f.trigger)
}

func (f *triggeredFetcher) Fetch(ctx context.Context, url string, dest *os.File) error {
	<-f.trigger
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	_, err := io.Copy(dest, strings.NewReader(fakeFileContents))
	return err
}

func buildTestCatalog(t *testing.T, n int) *catalog.Index {
	t.Helper()
	var b strings.Builder
	b.WriteString("# assembly_accession\tspecies_taxid\ttaxid\torganism_name\tftp_path\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "ACC_%d\t1\t1\tFoo bar\thttps://example.com/foo_%d\n", i, i)
	}
	idx, err := catalog.Build(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func newTestCache(t *testing.T, maxQueue, workers int, fetcher Fetcher) *Cache {
	t.Helper()
	idx := buildTestCatalog(t, 2000)
	lookup := catalog.NewURLLookup(idx)
	c, err := New(Options{
		RootDir:             t.TempDir(),
		MaxQueue:            maxQueue,
		ConcurrentDownloads: workers,
		DownloadTimeout:     5 * time.Second,
	}, lookup, fetcher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func openAndRead(t *testing.T, c *Cache, path string) string {
	t.Helper()
	h, err := c.Open(path, os.O_RDONLY)
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	defer h.Close()
	buf := make([]byte, 1000)
	n, err := h.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadAt(%q): %v", path, err)
	}
	return string(buf[:n])
}

func TestSingleOpenTriggerPreset(t *testing.T) {
	fetcher := newTriggeredFetcher()
	fetcher.fire()
	c := newTestCache(t, 10, 2, fetcher)

	got := openAndRead(t, c, "ACC_0/foo_0")
	if got != fakeFileContents {
		t.Errorf("contents = %q, want %q", got, fakeFileContents)
	}
}

// openAndReadSafe is like openAndRead but doesn't need a *testing.T,
// for use inside spawned goroutines in the bulk-concurrency scenarios.
func openAndReadSafe(c *Cache, path string) (string, error) {
	h, err := c.Open(path, os.O_RDONLY)
	if err != nil {
		return "", err
	}
	defer h.Close()
	buf := make([]byte, 1000)
	n, err := h.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return string(buf[:n]), nil
}

func TestTenConcurrentOpensQueueDepth(t *testing.T) {
	fetcher := newTriggeredFetcher()
	c := newTestCache(t, 10, 2, fetcher)

	results := make(chan string, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := openAndReadSafe(c, fmt.Sprintf("ACC_%d/foo_%d", i, i))
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			results <- got
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	if got := len(c.queue); got != 8 {
		t.Errorf("queue depth = %d, want 8", got)
	}

	fetcher.fire()
	wg.Wait()
	close(results)

	count := 0
	for got := range results {
		if got != fakeFileContents {
			t.Errorf("contents = %q, want %q", got, fakeFileContents)
		}
		count++
	}
	if count != 10 {
		t.Errorf("got %d results, want 10", count)
	}
}

func TestTwelveConcurrentOpensAllSucceed(t *testing.T) {
	fetcher := newTriggeredFetcher()
	c := newTestCache(t, 10, 2, fetcher)

	var wg sync.WaitGroup
	results := make(chan string, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := openAndReadSafe(c, fmt.Sprintf("ACC_%d/foo_%d", i, i))
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			results <- got
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	if got := len(c.queue); got != 10 {
		t.Errorf("queue depth = %d, want 10", got)
	}

	fetcher.fire()
	wg.Wait()
	close(results)

	count := 0
	for got := range results {
		if got != fakeFileContents {
			t.Errorf("contents = %q, want %q", got, fakeFileContents)
		}
		count++
	}
	if count != 12 {
		t.Errorf("got %d results, want 12", count)
	}
}

func TestThirteenConcurrentOpensOneQueueFull(t *testing.T) {
	fetcher := newTriggeredFetcher()
	c := newTestCache(t, 10, 2, fetcher)

	var wg sync.WaitGroup
	results := make(chan string, 13)
	for i := 0; i < 13; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := openAndReadSafe(c, fmt.Sprintf("ACC_%d/foo_%d", i, i))
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			results <- got
		}(i)
	}

	time.Sleep(150 * time.Millisecond)

	queueFullMsg := fmt.Sprintf(queueFullTemplate, 10, 10)
	queueFullCount := 0
	drained := drainNonBlocking(results)
	for _, r := range drained {
		if r == queueFullMsg {
			queueFullCount++
		}
	}
	if queueFullCount != 1 {
		t.Errorf("queue-full responses = %d, want 1 (got %v)", queueFullCount, drained)
	}

	fetcher.fire()
	wg.Wait()
	close(results)

	remaining := drainNonBlocking(results)
	for _, r := range remaining {
		if r != fakeFileContents {
			t.Errorf("contents = %q, want %q", r, fakeFileContents)
		}
	}
	if len(remaining)+queueFullCount != 13 {
		t.Errorf("total responses = %d, want 13", len(remaining)+queueFullCount)
	}
}

func drainNonBlocking(ch <-chan string) []string {
	var out []string
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestThousandConcurrentOpens(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large concurrency scenario in -short mode")
	}
	fetcher := newTriggeredFetcher()
	c := newTestCache(t, 10, 2, fetcher)

	const n = 1000
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := openAndReadSafe(c, fmt.Sprintf("ACC_%d/foo_%d", i, i))
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			results <- got
		}(i)
	}

	time.Sleep(200 * time.Millisecond)

	queueFullMsg := fmt.Sprintf(queueFullTemplate, 10, 10)
	preFireResults := drainNonBlocking(results)
	queueFullCount := 0
	for _, r := range preFireResults {
		if r == queueFullMsg {
			queueFullCount++
		}
	}

	fetcher.fire()
	wg.Wait()
	close(results)

	for r := range results {
		if r == queueFullMsg {
			queueFullCount++
		}
	}
	if queueFullCount != 988 {
		t.Errorf("queue-full responses = %d, want 988", queueFullCount)
	}

	root := c.rootDir
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	// 12 accession directories plus tmp/.
	if len(entries) != 13 {
		t.Errorf("len(root entries) = %d, want 13", len(entries))
	}

	tmpEntries, err := os.ReadDir(filepath.Join(root, "tmp"))
	if err != nil {
		t.Fatalf("ReadDir(tmp): %v", err)
	}
	if len(tmpEntries) != 3 {
		t.Errorf("len(tmp entries) = %d, want 3 (the warning files; downloads are renamed out of tmp/)", len(tmpEntries))
	}
}

func TestOriginUnknownIsHardError(t *testing.T) {
	fetcher := newTriggeredFetcher()
	fetcher.fire()
	c := newTestCache(t, 10, 2, fetcher)

	_, err := c.Open("does_not_exist/README.txt", os.O_RDONLY)
	if err == nil {
		t.Fatal("expected an error for an unknown accession")
	}
}

func TestPathConfinement(t *testing.T) {
	fetcher := newTriggeredFetcher()
	fetcher.fire()
	c := newTestCache(t, 10, 2, fetcher)

	_, err := c.Open("../../etc/passwd", os.O_RDONLY)
	if err == nil {
		t.Fatal("expected a path confinement error")
	}
}

func (f *triggeredFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// TestConcurrentOpensOfSamePathDedupe proves the central cache contract:
// many goroutines opening the identical accession/filename concurrently
// collapse into a single origin fetch.
func TestConcurrentOpensOfSamePathDedupe(t *testing.T) {
	fetcher := newTriggeredFetcher()
	c := newTestCache(t, 10, 2, fetcher)

	const n = 20
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := openAndReadSafe(c, "ACC_0/foo_0")
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			results <- got
		}()
	}

	time.Sleep(100 * time.Millisecond)
	fetcher.fire()
	wg.Wait()
	close(results)

	count := 0
	for got := range results {
		if got != fakeFileContents {
			t.Errorf("contents = %q, want %q", got, fakeFileContents)
		}
		count++
	}
	if count != n {
		t.Errorf("got %d successful opens, want %d", count, n)
	}

	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetcher.calls = %d, want 1 (all opens of the same path should dedupe into one origin fetch)", got)
	}
}

func TestInFlightRegistryClearsOnCompletion(t *testing.T) {
	fetcher := newTriggeredFetcher()
	c := newTestCache(t, 10, 2, fetcher)

	url := "https://example.com/foo_0"
	done := make(chan struct{})
	go func() {
		_, _ = openAndReadSafe(c, "ACC_0/foo_0")
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if c.InFlightCount(url) == 0 {
		t.Error("expected an in-flight entry while the download is pending")
	}

	fetcher.fire()
	<-done

	if got := c.InFlightCount(url); got != 0 {
		t.Errorf("InFlightCount after completion = %d, want 0", got)
	}
}
