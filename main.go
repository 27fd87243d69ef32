package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/movielogd/movielogd-importer/config"
	"github.com/movielogd/movielogd-importer/database"
	"github.com/movielogd/movielogd-importer/extractor"
	"github.com/movielogd/movielogd-importer/loader"
	"github.com/movielogd/movielogd-importer/logger"
)

var version string
var buildstamp string
var githash string

func main() {
	os.Exit(run())
}

func run() int {
	var dumppath string
	var force bool
	var resetstaging bool
	var configfile string
	flag.StringVar(&dumppath, "dump", "", "path to the movie metadata dump (one json record per line)")
	flag.BoolVar(&force, "force", false, "clear and reload the destination tables even when they hold data")
	flag.BoolVar(&resetstaging, "resetstaging", false, "clear the staging tables before extracting")
	flag.StringVar(&configfile, "config", config.Configfile, "path to config.toml")
	flag.Parse()

	cfg, errcfg := config.LoadCfg(configfile)
	logger.InitLogger(logger.LoggerConfig{
		LogLevel:     cfg.LogLevel,
		LogFile:      cfg.LogFile,
		LogFileSize:  cfg.LogFileSize,
		LogFileCount: cfg.LogFileCount,
		LogCompress:  cfg.LogCompress,
	})
	fmt.Println("movielogd importer - version " + version + " " + githash + " from " + buildstamp)
	if errcfg != nil {
		logger.Log.Warnf("config not loaded, using defaults: %v", errcfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()

	stagingdb, err := database.InitSqliteDB(cfg.StagingDB)
	if err != nil {
		logger.Log.Errorln(err)
		return 1
	}
	defer stagingdb.Close()
	if err := database.UpgradeDB(cfg.SchemaDir+"/stagingdb", cfg.StagingDB); err != nil {
		logger.Log.Errorln(err)
		return 1
	}

	if resetstaging {
		logger.Log.Infoln("clearing staging tables")
		if err := extractor.ResetStaging(ctx, stagingdb); err != nil {
			logger.Log.Errorln(err)
			return 1
		}
	}

	var counters *extractor.Counters
	staged, err := database.CountRows(stagingdb, "movies")
	if err != nil {
		logger.Log.Errorln(err)
		return 1
	}
	complete := false
	if staged > 0 {
		if complete, err = extractor.Completed(stagingdb); err != nil {
			logger.Log.Errorln(err)
			return 1
		}
	}
	switch {
	case staged > 0 && complete:
		// staging is the durable checkpoint between the two phases; the
		// marker separates a finished extraction from an aborted one
		logger.Log.Infof("staging already holds %d movies - skipping extraction", staged)
	case dumppath == "":
		if staged > 0 {
			logger.Log.Errorln("staging holds an incomplete extraction and no -dump was given")
		} else {
			logger.Log.Errorln("staging is empty and no -dump was given")
		}
		flag.Usage()
		return 2
	default:
		if staged > 0 {
			logger.Log.Warnf("staging holds %d movies from an aborted extraction - clearing before re-extracting", staged)
			if err := extractor.ResetStaging(ctx, stagingdb); err != nil {
				logger.Log.Errorln(err)
				return 1
			}
		}
		logger.Log.Infof("extracting %s", dumppath)
		counters, err = extractor.New(stagingdb, cfg.BatchSize, cfg.LineBuffer).Run(ctx, dumppath)
		if counters != nil {
			printExtractSummary(counters)
		}
		if err != nil {
			logger.Log.Errorln(err)
			return 1
		}
	}

	datadb, err := database.InitSqliteDB(cfg.DataDB)
	if err != nil {
		logger.Log.Errorln(err)
		return 1
	}
	defer datadb.Close()
	if err := database.UpgradeDB(cfg.SchemaDir+"/db", cfg.DataDB); err != nil {
		logger.Log.Errorln(err)
		return 1
	}

	result, err := loader.New(stagingdb, datadb, cfg.BatchSize, cfg.MaxRetries).Run(ctx, force)
	printLoadSummary(result, counters, time.Since(started))
	if err != nil {
		logger.Log.Errorln(err)
		return 1
	}
	return 0
}

func printExtractSummary(c *extractor.Counters) {
	fmt.Println("")
	fmt.Println("extraction summary")
	fmt.Printf("  lines read:      %d\n", c.Lines)
	fmt.Printf("  movies staged:   %d\n", c.Parsed)
	fmt.Printf("  skipped records: %d\n", c.Skipped)
	fmt.Printf("  warnings:        %d\n", c.Warnings)
	fmt.Printf("  key conflicts:   %d\n", c.Conflicts)
	for table, n := range c.Staged {
		fmt.Printf("  %-28s %d rows\n", table, n)
	}
}

func printLoadSummary(result *loader.Result, c *extractor.Counters, elapsed time.Duration) {
	fmt.Println("")
	fmt.Println("load summary")
	fmt.Printf("  outcome:           %s\n", result.State)
	fmt.Printf("  batches committed: %d\n", result.Batches)
	if result.FailedTable != "" {
		fmt.Printf("  failed table:      %s\n", result.FailedTable)
	}
	if result.DroppedLinks > 0 {
		fmt.Printf("  dropped links:     %d\n", result.DroppedLinks)
	}
	for table, n := range result.Loaded {
		fmt.Printf("  %-28s %d rows\n", table, n)
	}
	if c != nil {
		fmt.Printf("  skipped records:   %d\n", c.Skipped)
		fmt.Printf("  warnings:          %d\n", c.Warnings)
	}
	fmt.Printf("  elapsed:           %s\n", elapsed.Round(time.Millisecond))
}
