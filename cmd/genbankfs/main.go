// Command genbankfs mounts a read-only view over a genome assembly catalog,
// faceted by taxonomic attributes, backed by an on-demand download cache.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bewt85/genbankfs/cache"
	"github.com/bewt85/genbankfs/catalog"
	"github.com/bewt85/genbankfs/vfs"
)

type config struct {
	catalogPath         string
	mountPoint          string
	cacheDir            string
	ledgerPath          string
	maxQueue            int
	concurrentDownloads int
	downloadTimeout     time.Duration
	ratePerSecond       float64
	metricsAddr         string
	logLevel            string
}

func main() {
	cfg := &config{}
	root := newRootCommand(cfg)
	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("genbankfs: exiting")
	}
}

func newRootCommand(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genbankfs",
		Short: "Mount a faceted, on-demand-downloading view of a genome assembly catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.catalogPath, "catalog", "", "path to the assembly summary TSV (required)")
	flags.StringVar(&cfg.mountPoint, "mount", "", "directory to mount the filesystem at (required)")
	flags.StringVar(&cfg.cacheDir, "cache-dir", "", "directory to store downloaded files under (required)")
	flags.StringVar(&cfg.ledgerPath, "ledger-path", "", "path to the fetch ledger database (disabled if empty)")
	flags.IntVar(&cfg.maxQueue, "max-queue", cache.DefaultMaxQueue, "maximum number of queued downloads before new requests see the queue-full warning")
	flags.IntVar(&cfg.concurrentDownloads, "concurrent-downloads", cache.DefaultConcurrentDownloads, "number of download workers")
	flags.DurationVar(&cfg.downloadTimeout, "download-timeout", cache.DefaultDownloadTimeout, "per-request bound on how long a caller waits for a download before seeing the timeout warning")
	flags.Float64Var(&cfg.ratePerSecond, "rate-limit", 0, "maximum outbound fetches per second (0 disables limiting)")
	flags.StringVar(&cfg.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	flags.StringVar(&cfg.logLevel, "log-level", "info", "logrus level: debug, info, warn, error")

	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("mount")
	_ = cmd.MarkFlagRequired("cache-dir")

	return cmd
}

func run(cfg *config) error {
	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		return errors.Wrapf(err, "genbankfs: parsing --log-level %q", cfg.logLevel)
	}
	logrus.SetLevel(level)
	log := logrus.WithField("component", "main")

	index, err := buildCatalog(cfg.catalogPath)
	if err != nil {
		return err
	}
	lookup := catalog.NewURLLookup(index)

	c, err := cache.New(cache.Options{
		RootDir:             cfg.cacheDir,
		MaxQueue:            cfg.maxQueue,
		ConcurrentDownloads: cfg.concurrentDownloads,
		DownloadTimeout:     cfg.downloadTimeout,
		RatePerSecond:       cfg.ratePerSecond,
		LedgerPath:          cfg.ledgerPath,
	}, lookup, cache.NewHTTPFetcher())
	if err != nil {
		return errors.Wrap(err, "genbankfs: starting download cache")
	}
	defer c.Close()

	if cfg.metricsAddr != "" {
		go serveMetrics(cfg.metricsAddr, log)
	}

	fsys := vfs.New(index, c)

	conn, err := fuse.Mount(
		cfg.mountPoint,
		fuse.FSName("genbankfs"),
		fuse.Subtype("genbankfs"),
		fuse.ReadOnly(),
	)
	if err != nil {
		return errors.Wrapf(err, "genbankfs: mounting %q", cfg.mountPoint)
	}
	defer conn.Close()

	go waitForShutdown(cfg.mountPoint, log)

	log.WithField("mount", cfg.mountPoint).Info("serving")
	if err := fs.Serve(conn, fsys); err != nil {
		return errors.Wrap(err, "genbankfs: serving")
	}

	<-conn.Ready
	if err := conn.MountError; err != nil {
		return errors.Wrap(err, "genbankfs: mount")
	}
	return nil
}

func buildCatalog(path string) (*catalog.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "genbankfs: opening catalog %q", path)
	}
	defer f.Close()

	index, err := catalog.Build(f)
	if err != nil {
		return nil, errors.Wrapf(err, "genbankfs: building catalog from %q", path)
	}
	return index, nil
}

func serveMetrics(addr string, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server stopped")
	}
}

func waitForShutdown(mountPoint string, log *logrus.Entry) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.WithField("mount", mountPoint).Info("unmounting")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		if err := fuse.Unmount(mountPoint); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			log.Error("timed out waiting to unmount")
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}
