package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nyushi/internal/common"
	"github.com/ternarybob/nyushi/internal/pipeline"
	"github.com/ternarybob/nyushi/internal/services/crawler"
	"github.com/ternarybob/nyushi/internal/services/downloader"
	"github.com/ternarybob/nyushi/internal/services/llm"
	"github.com/ternarybob/nyushi/internal/services/pdf"
	"github.com/ternarybob/nyushi/internal/services/renamer"
	"github.com/ternarybob/nyushi/internal/services/sync"
	"github.com/ternarybob/nyushi/internal/storage/badger"
	"github.com/ternarybob/nyushi/internal/storage/sqlite"
	"github.com/ternarybob/nyushi/internal/storage/upstream"
)

// configPaths is a custom flag type that allows multiple -config flags,
// later files overriding earlier ones.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("nyushi version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Auto-discover a config file if none was given: current directory
	// first, then the conventional local-deployment path.
	if len(configFiles) == 0 {
		if _, err := os.Stat("nyushi.toml"); err == nil {
			configFiles = append(configFiles, "nyushi.toml")
		} else if _, err := os.Stat("deployments/local/nyushi.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/nyushi.toml")
		}
	}

	// Startup sequence: load config -> init logger -> print banner -> wire
	// adapters -> run the pipeline runtime until interrupted.
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		if len(configFiles) == 0 {
			tempLogger.Fatal().Err(err).Msg("failed to load configuration: no config file found")
		} else {
			tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("failed to load configuration files")
		}
		os.Exit(1)
	}

	logger := common.SetupLogger(config)
	common.InitLogger(logger)
	common.InstallCrashHandler(filepath.Dir(config.Logging.FilePath))
	common.PrintBanner(config, logger)

	logger.Info().Strs("config_files", configFiles).Msg("configuration loaded")

	runtime, closeFn, err := buildRuntime(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire pipeline runtime")
	}
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				runErrCh <- fmt.Errorf("pipeline runtime panicked: %v", r)
			}
		}()
		runErrCh <- runtime.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info().Msg("interrupt signal received")
	case err := <-runErrCh:
		if err != nil {
			logger.Error().Err(err).Msg("pipeline runtime exited unexpectedly")
		}
	}

	logger.Info().Msg("shutting down pipeline runtime")
	cancel()
	runtime.Shutdown()
	<-runErrCh

	logger.Info().Msg("nyushi stopped")
}

// runtimeDeps bundles the adapters buildRuntime opened, so closeFn can close
// every one of them in reverse order regardless of where construction
// failed.
type runtimeDeps struct {
	upstreamCatalog *upstream.Catalog
	catalog         *sqlite.Catalog
	badgerDB        *badger.BadgerDB
}

func (d *runtimeDeps) Close() {
	if d.badgerDB != nil {
		d.badgerDB.Close()
	}
	if d.catalog != nil {
		d.catalog.Close()
	}
	if d.upstreamCatalog != nil {
		d.upstreamCatalog.Close()
	}
}

// buildRuntime constructs every storage/service adapter and wires them into
// a pipeline.Runtime. Construction order mirrors each adapter's own
// dependencies: upstream and catalog first (nothing else needs them to
// exist), then blob, then the LLM-backed services that share the catalog's
// *sql.DB for audit logging.
func buildRuntime(config *common.Config, logger arbor.ILogger) (*pipeline.Runtime, func(), error) {
	deps := &runtimeDeps{}
	closeFn := func() { deps.Close() }

	upstreamCatalog, err := upstream.Open(logger, config.Upstream)
	if err != nil {
		return nil, closeFn, fmt.Errorf("open upstream catalog: %w", err)
	}
	deps.upstreamCatalog = upstreamCatalog

	catalog, err := sqlite.NewCatalog(logger, &config.Storage.SQLite)
	if err != nil {
		return nil, closeFn, fmt.Errorf("open catalog: %w", err)
	}
	deps.catalog = catalog

	db, ok := catalog.DB().(*sql.DB)
	if !ok {
		return nil, closeFn, fmt.Errorf("catalog returned unexpected DB handle type")
	}

	badgerDB, err := badger.NewBadgerDB(logger, &config.Storage.Blob)
	if err != nil {
		return nil, closeFn, fmt.Errorf("open blob store: %w", err)
	}
	deps.badgerDB = badgerDB
	blobStore := badger.NewBlobStore(badgerDB, logger)

	llmService, _, err := llm.NewLLMService(config, db, logger)
	if err != nil {
		return nil, closeFn, fmt.Errorf("build llm service: %w", err)
	}

	extractor := pdf.NewExtractor(logger, config.Extract.MaxPages)
	crawlerAdapter := crawler.NewAdapter(logger, config.Crawl, llmService)
	downloaderAdapter := downloader.NewAdapter(logger, config.Download, blobStore)
	renamerAdapter := renamer.NewAdapter(logger, config.Rename, llmService)
	detector := sync.NewDetector(logger, upstreamCatalog, catalog)

	runtime, err := pipeline.NewRuntime(
		logger, config, db,
		catalog, blobStore,
		crawlerAdapter, downloaderAdapter, extractor, renamerAdapter,
		detector,
	)
	if err != nil {
		return nil, closeFn, fmt.Errorf("build pipeline runtime: %w", err)
	}

	return runtime, closeFn, nil
}
