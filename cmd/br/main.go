// Command br is an agent-first local issue tracker: a SQLite store of work
// items with an append-only event journal, a dependency graph with readiness
// derivation, and a JSONL export kept in sync with the database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/braid-dev/braid/internal/config"
	"github.com/braid-dev/braid/internal/configfile"
	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/idgen"
	"github.com/braid-dev/braid/internal/importer"
	"github.com/braid-dev/braid/internal/storage/sqlite"
)

var (
	flagJSON       bool
	flagActor      string
	flagDebug      bool
	flagAllowStale bool
)

// Process-wide handles, set up lazily by ensureStore.
var (
	ws      *configfile.Workspace
	wsCfg   *configfile.Config
	store   *sqlite.Store
	dbFresh importer.Freshness
)

var rootCmd = &cobra.Command{
	Use:           "br",
	Short:         "br is a local, dependency-aware issue tracker",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit a single JSON value on stdout")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "acting identity recorded on events")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "write a rotating debug log to the cache dir")
	rootCmd.PersistentFlags().BoolVar(&flagAllowStale, "allow-stale", false, "permit writes when the JSONL is newer than the database")
}

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
	log.SetOutput(os.Stderr)

	err := rootCmd.Execute()
	if store != nil {
		_ = store.Close()
	}
	if err == nil {
		return
	}

	reportError(err)
	os.Exit(exitCode(err))
}

// exitCode maps a failure to the process exit status: 1 for user/domain
// errors, 2 for internal and IO failures.
func exitCode(err error) int {
	if errs.IsDomain(err) {
		return 1
	}
	return 2
}

// reportError prints the failure: a structured JSON object under --json,
// a human line (plus hint) otherwise. Always stderr except the JSON value,
// which is the command's sole stdout artifact.
func reportError(err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = &errs.Error{Code: errs.CodeInternal, Message: err.Error()}
	}
	if flagJSON {
		out := struct {
			Error *errs.Error `json:"error"`
		}{e}
		data, _ := json.Marshal(out)
		fmt.Println(string(data))
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", e.Error())
	if e.Hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", e.Hint)
	}
}

// actor resolves the identity recorded on events.
func actor() string {
	if flagActor != "" {
		return flagActor
	}
	return config.Actor()
}

// jsonMode reports whether --json or BEADS_JSON is active.
func jsonMode() bool {
	return flagJSON || config.GetBool("json")
}

// outputJSON writes the command's single JSON value to stdout.
func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, "failed to encode output")
	}
	fmt.Println(string(data))
	return nil
}

// ensureStore locates the workspace, opens the database, and runs the
// freshness check: a newer JSONL with no local dirt is auto-imported; a
// newer JSONL with local dirt marks the database stale.
func ensureStore(ctx context.Context) error {
	if store != nil {
		return nil
	}

	var err error
	if ws, err = configfile.Find("."); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, err, "no workspace")
	}
	if wsCfg, err = ws.LoadConfig(); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to load workspace config")
	}

	setupDebugLog()

	dbPath := ws.DBPath(wsCfg.Prefix)
	if store, err = sqlite.OpenWithBusyTimeout(dbPath, config.GetDuration("busy-timeout")); err != nil {
		return err
	}
	if err := store.SetConfig(ctx, "issue_prefix", wsCfg.Prefix); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to record issue prefix")
	}

	if dbFresh, err = importer.CheckFreshness(ctx, store, ws, wsCfg, dbPath); err != nil {
		return err
	}
	if dbFresh == importer.FreshJSONLNewer {
		if _, err := os.Stat(ws.JSONLPath(wsCfg.Prefix)); err == nil {
			log.Printf("JSONL is newer than the database; importing")
			if _, err := importer.Import(ctx, store, ws, wsCfg, importer.Options{
				Lenient:     config.GetBool("import.lenient"),
				LockTimeout: config.GetDuration("lock-timeout"),
			}); err != nil {
				return err
			}
			dbFresh = importer.FreshInSync
		}
	}
	return nil
}

// requireWritable blocks mutations against a stale database.
func requireWritable() error {
	if dbFresh == importer.FreshConflict && !flagAllowStale && !config.GetBool("allow-stale") {
		return errs.New(errs.CodeStaleDatabase,
			"the JSONL file is newer than the database and local changes are pending").
			WithHint("run 'br sync --import-only' first, or pass --allow-stale")
	}
	return nil
}

func setupDebugLog() {
	if !flagDebug && !config.GetBool("debug") {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   ws.DebugLogPath(),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	})
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

// resolveID turns user input into a full issue ID, or fails with the typed
// error. An empty input resolves to the last-touched issue.
func resolveID(ctx context.Context, input string) (string, error) {
	if input == "" {
		if last := ws.LastTouched(); last != "" {
			return last, nil
		}
		return "", errs.New(errs.CodeInvalidArgument, "no issue ID given and no last-touched issue")
	}

	res, err := store.ResolveID(ctx, input)
	if err != nil {
		return "", err
	}
	switch res.Match {
	case idgen.MatchExact, idgen.MatchUniquePrefix:
		return res.ID, nil
	case idgen.MatchAmbiguous:
		return "", errs.New(errs.CodeInvalidID, "ambiguous issue ID %q matches %v", input, res.Candidates)
	default:
		return "", errs.NotFound(input)
	}
}

// touched records the last mutated ID, best-effort.
func touched(id string) {
	if ws != nil {
		ws.SetLastTouched(id)
	}
}
