package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stefanw/photosort/internal/cache"
	"github.com/stefanw/photosort/internal/exif"
	"github.com/stefanw/photosort/internal/manifest"
	"github.com/stefanw/photosort/internal/mapping"
	"github.com/stefanw/photosort/internal/organize"
	"github.com/stefanw/photosort/internal/report"
	"github.com/stefanw/photosort/internal/scan"
	"github.com/stefanw/photosort/internal/util"
)

// exitInterrupted distinguishes "stopped on user request" from "failed"
const exitInterrupted = 130

var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Move or copy photos into rating/label directories",
	Long: `Organize walks the source directories, reads each photo's rating and
label, resolves the destination through the optional mapping rules, and
moves or copies the file under the target directory.

The run can be interrupted with Ctrl-C at any time: the cache is flushed
and partial statistics are printed before exiting.`,
	RunE: runOrganize,
}

func init() {
	rootCmd.AddCommand(organizeCmd)

	f := organizeCmd.Flags()
	f.StringSliceP("source", "s", nil, "source directory (repeatable)")
	f.StringP("target", "t", "", "target directory (default: each source is its own target)")
	f.StringSlice("ext", nil, "additional file extensions to include")
	f.Bool("copy", false, "copy files instead of moving them")
	f.BoolP("dry-run", "n", false, "log intended actions without touching the filesystem")
	f.BoolP("overwrite", "f", false, "overwrite existing target files")
	f.Int("min-rating", 0, "skip files rated below this")
	f.String("mapping", "", "mapping rule file rewriting the rating/label segment")
	f.Bool("remove-empty-dirs", false, "remove the immediate source directory after a move if empty")
	f.Bool("exclude-organized", false, "do not re-discover files already under the target directory")

	f.Bool("cache", true, "enable the metadata cache")
	f.String("cache-file", "photosort-cache.gz", "cache file location")
	f.String("cache-strategy", "path", "lookup strategy: path, path-hash, path-relpath, path-hash-relpath")
	f.String("cache-skip", "off", "skip-cached mode: off, verify, blind (blind trusts any hit, unsafe)")
	f.Int("cache-rel-depth", cache.DefaultRelDepth, "parent directory segments in the relpath cache key")
	f.String("hash-algo", "sha256", "content hash: sha256, xxh64")

	f.String("manifest", "", "SQLite placement manifest file (empty: disabled)")

	viper.BindPFlag("source", f.Lookup("source"))
	viper.BindPFlag("target", f.Lookup("target"))
	viper.BindPFlag("ext", f.Lookup("ext"))
	viper.BindPFlag("copy", f.Lookup("copy"))
	viper.BindPFlag("dry-run", f.Lookup("dry-run"))
	viper.BindPFlag("overwrite", f.Lookup("overwrite"))
	viper.BindPFlag("min-rating", f.Lookup("min-rating"))
	viper.BindPFlag("mapping", f.Lookup("mapping"))
	viper.BindPFlag("remove-empty-dirs", f.Lookup("remove-empty-dirs"))
	viper.BindPFlag("exclude-organized", f.Lookup("exclude-organized"))
	viper.BindPFlag("cache.enabled", f.Lookup("cache"))
	viper.BindPFlag("cache.file", f.Lookup("cache-file"))
	viper.BindPFlag("cache.strategy", f.Lookup("cache-strategy"))
	viper.BindPFlag("cache.skip", f.Lookup("cache-skip"))
	viper.BindPFlag("cache.rel-depth", f.Lookup("cache-rel-depth"))
	viper.BindPFlag("hash-algo", f.Lookup("hash-algo"))
	viper.BindPFlag("manifest", f.Lookup("manifest"))
}

func runOrganize(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	sources := viper.GetStringSlice("source")
	if len(sources) == 0 {
		return fmt.Errorf("%w: at least one source directory is required (--source/-s)", util.ErrInvalidConfig)
	}
	dryRun := viper.GetBool("dry-run")

	// All configuration errors abort here, before any file is touched
	hashAlgo, err := util.ParseHashAlgo(viper.GetString("hash-algo"))
	if err != nil {
		return err
	}
	strategy, err := cache.ParseStrategy(viper.GetString("cache.strategy"))
	if err != nil {
		return err
	}
	skipMode, err := cache.ParseSkipMode(viper.GetString("cache.skip"))
	if err != nil {
		return err
	}

	var rules []mapping.Rule
	if mappingFile := viper.GetString("mapping"); mappingFile != "" {
		rules, err = mapping.Load(mappingFile)
		if err != nil {
			return err
		}
		util.InfoLog("Loaded %d mapping rules from %s", len(rules), mappingFile)
	}

	hasher := util.NewHasher(hashAlgo)
	store := cache.New(&cache.Config{
		Enabled:  viper.GetBool("cache.enabled"),
		DryRun:   dryRun,
		Path:     viper.GetString("cache.file"),
		Strategy: strategy,
		RelDepth: viper.GetInt("cache.rel-depth"),
		Hasher:   hasher,
	})
	if err := store.Load(); err != nil {
		// Degrade, never abort: a lost cache means more metadata reads,
		// not wrong placements
		util.WarnLog("cache load failed, starting with an empty store: %v", err)
	}

	excludeDir := ""
	if viper.GetBool("exclude-organized") && viper.GetString("target") != "" {
		excludeDir = viper.GetString("target")
	}
	scanner := scan.New(&scan.Config{
		AdditionalExts: viper.GetStringSlice("ext"),
		ExcludeDir:     excludeDir,
	})

	logLevel := report.LevelInfo
	if viper.GetBool("quiet") {
		logLevel = report.LevelWarning
	} else if viper.GetBool("verbose") {
		logLevel = report.LevelDebug
	}
	logger, err := report.NewEventLogger("artifacts", logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		logger = report.NullLogger()
	}
	defer logger.Close()
	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}

	var m *manifest.Manifest
	if manifestPath := viper.GetString("manifest"); manifestPath != "" && !dryRun {
		m, err = manifest.Open(manifestPath)
		if err != nil {
			util.WarnLog("manifest disabled: %v", err)
		} else {
			defer m.Close()
			if _, err := m.BeginRun(sources, viper.GetString("target")); err != nil {
				util.WarnLog("manifest disabled: %v", err)
				m.Close()
				m = nil
			}
		}
	}

	org := organize.New(organize.Config{
		Sources:         sources,
		Target:          viper.GetString("target"),
		Copy:            viper.GetBool("copy"),
		DryRun:          dryRun,
		Overwrite:       viper.GetBool("overwrite"),
		MinRating:       viper.GetInt("min-rating"),
		SkipMode:        skipMode,
		RemoveEmptyDirs: viper.GetBool("remove-empty-dirs"),
	}, scanner, store, exif.NewTool(), rules, logger, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := org.Run(ctx)

	if m != nil {
		if err := m.FinishRun(errors.Is(runErr, util.ErrInterrupted)); err != nil {
			util.WarnLog("manifest: %v", err)
		}
	}

	summary.Print(store.Stats(), store.Enabled())

	if errors.Is(runErr, util.ErrInterrupted) {
		util.WarnLog("Interrupted, partial results saved")
		// os.Exit skips the deferred closes
		logger.Close()
		if m != nil {
			m.Close()
		}
		os.Exit(exitInterrupted)
	}
	return runErr
}
