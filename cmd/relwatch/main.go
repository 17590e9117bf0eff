package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/relwatch/relwatch/pkg/cache"
	"github.com/relwatch/relwatch/pkg/config"
	"github.com/relwatch/relwatch/pkg/engine"
	"github.com/relwatch/relwatch/pkg/feed"
)

// Opts with all CLI options
type Opts struct {
	File      string        `short:"f" long:"file" env:"RELWATCH_FILE" description:"configuration file with projects to check"`
	StateDir  string        `long:"state-dir" env:"RELWATCH_STATE_DIR" description:"directory holding the cache files"`
	ListCache bool          `short:"l" long:"list-cache" description:"list all projects and their versions in cache"`
	Timeout   time.Duration `long:"timeout" env:"RELWATCH_TIMEOUT" default:"30s" description:"feed fetch timeout"`
	Workers   int           `long:"workers" env:"RELWATCH_WORKERS" default:"5" description:"maximum concurrent site checks"`

	// Common options
	Debug   bool `short:"d" long:"debug" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.NoColor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// run executes one poll (or the cache listing) and flushes the cache.
// Configuration problems are fatal; fetch and cache-save problems are
// reported and the run still succeeds.
func run(ctx context.Context, opts Opts) error {
	configPath, stateDir, err := resolvePaths(opts)
	if err != nil {
		return err
	}

	store, err := cache.NewStore(stateDir)
	if err != nil {
		return err
	}

	if opts.ListCache {
		listCache(os.Stdout, store)
		return nil
	}

	sites, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng := engine.New(feed.NewHTTPFetcher(opts.Timeout), store, opts.Workers)
	res := eng.Run(ctx, sites)
	report(os.Stdout, res)

	if err := store.Flush(); err != nil {
		log.Printf("[WARN] cache not fully saved: %v", err)
	}
	return nil
}

// resolvePaths fills the default locations: config under ~/.config/versions,
// cache state under ~/.local/versions
func resolvePaths(opts Opts) (configPath, stateDir string, err error) {
	configPath, stateDir = opts.File, opts.StateDir
	if configPath != "" && stateDir != "" {
		return configPath, stateDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("resolve home dir: %w", err)
	}
	if configPath == "" {
		configPath = filepath.Join(home, ".config", "versions", "versions.yaml")
	}
	if stateDir == "" {
		stateDir = filepath.Join(home, ".local", "versions")
	}
	return configPath, stateDir, nil
}

// report prints one "project version" line per change and a warning per
// failed feed
func report(w io.Writer, res engine.Result) {
	for _, c := range res.Changes {
		fmt.Fprintf(w, "%s %s\n", c.Project, c.New)
	}
	for _, se := range res.Errors {
		log.Printf("[WARN] site %s: check of %s failed: %v", se.Site, se.URL, se.Err)
	}
}

// listCache prints the cached versions grouped by site
func listCache(w io.Writer, store *cache.Store) {
	currentSite := ""
	for _, rec := range store.ListAll() {
		if rec.Site != currentSite {
			if currentSite != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s:\n", rec.Site)
			currentSite = rec.Site
		}
		fmt.Fprintf(w, "\t%s %s\n", rec.Project, rec.Version)
	}
}

func setupLog(dbg, noColor bool) {
	logOpts := []lgr.Option{}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	if noColor {
		color.NoColor = true
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
