// octrans translates OpenCart category descriptions with an OpenAI chat model.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/minios-linux/octrans/config"
	"github.com/minios-linux/octrans/i18n"
	"github.com/minios-linux/octrans/langmeta"
	"github.com/minios-linux/octrans/lockfile"
	"github.com/minios-linux/octrans/logging"
	"github.com/minios-linux/octrans/pipeline"
	"github.com/minios-linux/octrans/store"
	"github.com/minios-linux/octrans/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// apiKeyEnv names the variable holding the OpenAI key.
const apiKeyEnv = "OPENAI_API_KEY"

// errNoAPIKey is returned when an executing run has no API key.
var errNoAPIKey = errors.New("please set your " + apiKeyEnv + " environment variable")

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

type app struct {
	stdout io.Writer
	stderr io.Writer
	log    zerolog.Logger

	// Shared flags
	configFile   string
	verbose      bool
	jsonLog      bool
	sourceLangID int
	destLangID   int
	lockFile     string

	// Status flags
	reset bool

	// Translation flags
	execute      bool
	incremental  bool
	keepSource   bool
	sanitizeHTML bool
	model        string
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		log:    logging.New(logging.Options{Out: stderr}),
	}
}

// normalizeFlagName lets --source_lang_id stand for --source-lang-id.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "octrans",
		Short: "Translate OpenCart category descriptions with OpenAI",
		Long: `octrans reads the category descriptions of one OpenCart language, translates
their text fields with an OpenAI chat model and writes them under another
language id.

The default is a dry run: rows are read and payloads are built, but nothing
is sent to the API and nothing is written. Pass --no-dry-run to translate.

Database settings come from an OpenCart config.php (DB_HOSTNAME, DB_USERNAME,
DB_PASSWORD, DB_DATABASE, DB_PORT, DB_PREFIX) or a YAML/TOML/JSON file with
the same keys; environment variables of the same name override them.
OPENAI_API_KEY is required with --no-dry-run.

Examples:
  # Show what would be translated from language 2 to 3
  octrans --verbose

  # Translate Russian (1) into Ukrainian (4), skipping unchanged rows
  octrans --no-dry-run --source-lang-id 1 --dest-lang-id 4 --incremental`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			i18n.Init("")
			a.log = logging.New(logging.Options{
				Out:     a.stderr,
				Verbose: a.verbose,
				JSON:    a.jsonLog,
			}).With().Str("run", uuid.NewString()).Logger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTranslate(cmd.Context())
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetGlobalNormalizationFunc(normalizeFlagName)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", config.DefaultFile, "OpenCart config.php or YAML/TOML/JSON config file")
	pf.BoolVar(&a.verbose, "verbose", false, "Log every category and the messages sent for it")
	pf.BoolVar(&a.jsonLog, "json-log", false, "Write JSON log lines instead of console output")
	pf.IntVar(&a.sourceLangID, "source-lang-id", 2, "Language id to translate from")
	pf.IntVar(&a.destLangID, "dest-lang-id", 3, "Language id to write translations to")
	pf.StringVar(&a.lockFile, "lock-file", lockfile.LockFileName, "Checksum file used by --incremental")

	f := root.Flags()
	f.BoolVar(&a.execute, "no-dry-run", false, "Call the API and write translations")
	f.BoolVar(&a.incremental, "incremental", false, "Skip categories unchanged since the last run")
	f.BoolVar(&a.keepSource, "keep-source", false, "Keep the source text for fields missing from the reply")
	f.BoolVar(&a.sanitizeHTML, "sanitize-html", false, "Sanitise translated description HTML")
	f.StringVar(&a.model, "model", "", "Model name (default from config, gpt-4o)")

	root.AddCommand(
		a.newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	a := newApp(os.Stdout, os.Stderr)
	if err := a.newRootCmd().Execute(); err != nil {
		a.log.Error().Err(err).Msg("octrans failed")
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "octrans version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// status (read-only: row counts for the language pair)
// ---------------------------------------------------------------------------

func (a *app) newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show translation progress for the language pair",
		Long: `Count the category descriptions of the source and destination languages
and how many source categories have no destination row yet.

With --reset the lock file forgets the language pair, so the next
--incremental run translates every category again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&a.reset, "reset", false, "Forget the language pair in the lock file")
	return cmd
}

func (a *app) runStatus(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DB, a.log)
	if err != nil {
		return err
	}
	defer st.Close()

	srcCount, err := st.CountByLanguage(ctx, a.sourceLangID)
	if err != nil {
		return err
	}
	dstCount, err := st.CountByLanguage(ctx, a.destLangID)
	if err != nil {
		return err
	}
	missing, err := st.CountUntranslated(ctx, a.sourceLangID, a.destLangID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s (%s)\n", st.Table(), cfg.DB.Database, cfg.DB.Driver)
	fmt.Fprintf(out, "  "+i18n.T("Source language %d (%s): %d categories")+"\n",
		a.sourceLangID, langmeta.Native(cfg.Translation.SourceLang), srcCount)
	fmt.Fprintf(out, "  "+i18n.T("Destination language %d (%s): %d categories")+"\n",
		a.destLangID, langmeta.Native(cfg.Translation.DestLang), dstCount)
	fmt.Fprintf(out, "  "+i18n.T("Untranslated categories: %d")+"\n", missing)

	path := a.lockFile
	if path == "" {
		path = lockfile.LockFileName
	}
	if _, err := os.Stat(path); err == nil {
		lf, err := lockfile.Load(path)
		if err != nil {
			return err
		}
		if a.reset {
			pair := lockfile.PairKey(a.sourceLangID, a.destLangID)
			n := lf.RemovePair(pair)
			if lf.Modified() {
				if err := lf.Save(); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "  "+i18n.T("Lock file %s: forgot %d categories of %s")+"\n", path, n, pair)
		}
		fmt.Fprintf(out, "  "+i18n.T("Lock file %s: %s")+"\n", path, lf.Summary())
	}
	return nil
}

// ---------------------------------------------------------------------------
// translate (root command)
// ---------------------------------------------------------------------------

func (a *app) runTranslate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := a.log

	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}

	apiKey := os.Getenv(apiKeyEnv)
	if a.execute && apiKey == "" {
		return errNoAPIKey
	}

	st, err := store.Open(cfg.DB, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn().Msg("Interrupted, stopping after the current category...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if a.execute {
		release, err := st.Lock(ctx, "octrans:"+st.Table())
		if err != nil {
			return err
		}
		defer release()
	}

	prov := translate.DefaultProvider()
	prov.APIKey = apiKey
	prov.BaseURL = cfg.Translation.BaseURL
	prov.Timeout = cfg.Translation.Timeout
	prov.Model = cfg.Translation.Model
	if a.model != "" {
		prov.Model = a.model
	}
	client := translate.NewClient(prov, translate.Options{
		StoreType:    cfg.Translation.StoreType,
		SourceLang:   langmeta.Name(cfg.Translation.SourceLang),
		TargetLang:   langmeta.Name(cfg.Translation.DestLang),
		Temperature:  cfg.Translation.Temperature,
		SystemPrompt: cfg.Translation.SystemPrompt,
	})

	opts := pipeline.Options{
		SourceLangID:        a.sourceLangID,
		DestLangID:          a.destLangID,
		Execute:             a.execute,
		Verbose:             a.verbose,
		KeepSourceOnMissing: a.keepSource,
		SanitizeHTML:        a.sanitizeHTML,
	}
	if !a.jsonLog {
		opts.Progress = a.stderr
	}
	runner := pipeline.New(st, st, client, log, opts)

	var lf *lockfile.LockFile
	if a.incremental {
		lf, err = lockfile.Load(a.lockFile)
		if err != nil {
			return err
		}
		runner.WithLedger(lf)
	}

	log.Debug().
		Str("config", cfg.File).
		Str("table", st.Table()).
		Str("model", prov.Model).
		Str("locale", i18n.Language()).
		Bool("execute", a.execute).
		Msg("starting")

	sum, runErr := runner.Run(ctx)

	// Successful writes and pruned entries are kept even when the run aborted.
	if lf != nil && a.execute && lf.Modified() {
		if err := lf.Save(); err != nil {
			log.Error().Err(err).Msg("saving lock file")
		} else {
			log.Debug().Str("path", lf.Path()).Msg("lock file saved")
		}
	}
	if runErr != nil {
		return runErr
	}

	for _, line := range sum.Lines() {
		log.Info().Msg(line)
	}
	if !a.execute {
		log.Info().Msg(i18n.T("Dry run: nothing was sent or written. Re-run with --no-dry-run to translate."))
	}
	return nil
}
