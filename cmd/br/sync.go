package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/config"
	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/export"
	"github.com/braid-dev/braid/internal/importer"
)

var syncFlags struct {
	full       bool
	importOnly bool
	flushOnly  bool
	lenient    bool
	watch      bool
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the database and the JSONL file",
	Long: `sync flushes dirty issues out to the JSONL file and imports externally
authored JSONL changes back into the database. --watch keeps running and
re-imports whenever the JSONL file changes on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := ensureStore(ctx); err != nil {
			return err
		}

		lockTimeout := config.GetDuration("lock-timeout")
		lenient := syncFlags.lenient || config.GetBool("import.lenient")

		if syncFlags.watch {
			return watchJSONL(cmd, lenient, lockTimeout)
		}

		out := map[string]interface{}{}

		if !syncFlags.flushOnly {
			if _, err := os.Stat(ws.JSONLPath(wsCfg.Prefix)); err == nil {
				stats, err := importer.Import(ctx, store, ws, wsCfg, importer.Options{
					Lenient:     lenient,
					LockTimeout: lockTimeout,
				})
				if err != nil {
					return err
				}
				out["import"] = stats
				if !jsonMode() {
					fmt.Printf("Imported: %d new, %d updated, %d skipped", stats.Inserted, stats.Updated, stats.Skipped)
					if stats.Tombstoned > 0 || stats.Resurrected > 0 {
						fmt.Printf(", %d tombstoned, %d resurrected", stats.Tombstoned, stats.Resurrected)
					}
					if stats.Malformed > 0 {
						fmt.Printf(", %d malformed line(s) skipped", stats.Malformed)
					}
					fmt.Println()
				}
			}
		}

		if !syncFlags.importOnly {
			stats, err := export.Flush(ctx, store, ws, wsCfg, export.Options{
				Full:        syncFlags.full,
				LockTimeout: lockTimeout,
			})
			if err != nil {
				return err
			}
			out["flush"] = stats
			if !jsonMode() {
				fmt.Printf("Flushed %d issue(s)\n", stats.Exported)
			}
		}

		if jsonMode() {
			return outputJSON(out)
		}
		return nil
	},
}

// watchJSONL re-imports whenever the JSONL file changes. Writes from our own
// flushes are debounced away by comparing the stored content hash.
func watchJSONL(cmd *cobra.Command, lenient bool, lockTimeout time.Duration) error {
	ctx := cmd.Context()
	jsonlPath := ws.JSONLPath(wsCfg.Prefix)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to create watcher")
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: atomic renames replace the file inode.
	if err := watcher.Add(ws.BeadsDir); err != nil {
		return errs.Wrap(errs.CodeIOError, err, "failed to watch %s", ws.BeadsDir)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "Watching %s for changes (ctrl-c to stop)\n", jsonlPath)

	var debounce *time.Timer
	reimport := func() {
		knownHash, _ := store.GetMetadata(ctx, "jsonl_content_hash")
		currentHash, err := export.FileHash(jsonlPath)
		if err != nil || currentHash == knownHash {
			return
		}
		stats, err := importer.Import(ctx, store, ws, wsCfg, importer.Options{
			Lenient:     lenient,
			LockTimeout: lockTimeout,
		})
		if err != nil {
			log.Printf("auto-import failed: %v", err)
			return
		}
		fmt.Fprintf(os.Stderr, "Imported: %d new, %d updated, %d skipped\n",
			stats.Inserted, stats.Updated, stats.Skipped)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != jsonlPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(300*time.Millisecond, reimport)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		case <-sigs:
			return nil
		}
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncFlags.full, "full", false, "re-export every issue, not just the dirty set")
	syncCmd.Flags().BoolVar(&syncFlags.importOnly, "import-only", false, "only import, skip the flush")
	syncCmd.Flags().BoolVar(&syncFlags.flushOnly, "flush-only", false, "only flush, skip the import")
	syncCmd.Flags().BoolVar(&syncFlags.lenient, "lenient", false, "skip malformed JSONL lines instead of aborting")
	syncCmd.Flags().BoolVar(&syncFlags.watch, "watch", false, "keep running and auto-import JSONL changes")
	rootCmd.AddCommand(syncCmd)
}
