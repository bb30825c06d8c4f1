package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/braid-dev/braid/internal/configfile"
	"github.com/braid-dev/braid/internal/importer"
)

// setupWorkspace resets the CLI state, moves into a fresh temp directory,
// and initializes a workspace with prefix bd. Each test gets its own
// workspace; commands within one test share the cached store, the way one
// process does.
func setupWorkspace(t *testing.T) {
	t.Helper()
	resetCLI(t)
	t.Chdir(t.TempDir())
	if out, err := runBR(t, "init", "--prefix", "bd"); err != nil {
		t.Fatalf("init failed: %v (output %q)", err, out)
	}
}

// resetCLI clears the process-wide handles and every flag the previous test
// may have changed, so commands see pristine state.
func resetCLI(t *testing.T) {
	t.Helper()
	if store != nil {
		_ = store.Close()
		store = nil
	}
	ws = nil
	wsCfg = nil
	dbFresh = importer.FreshInSync
	resetFlags(rootCmd)
	// A cache-dir override from the environment would relocate the test
	// databases; empty means "use .beads".
	t.Setenv(configfile.CacheDirEnv, "")
}

// resetFlags restores changed flags (local and persistent) to their
// defaults, recursively. Slice flags need Replace: Set appends.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// runBR executes one br command, returning its captured stdout and error.
// Flags are reset first so each invocation parses like a fresh process;
// the cached store persists the way it does within one real process.
func runBR(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	execErr := rootCmd.Execute()

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()

	return buf.String(), execErr
}

// runJSON executes a command with --json and unmarshals the single stdout
// value into out.
func runJSON(t *testing.T, out interface{}, args ...string) {
	t.Helper()
	output, err := runBR(t, append(args, "--json")...)
	if err != nil {
		t.Fatalf("%v failed: %v (output %q)", args, err, output)
	}
	if err := json.Unmarshal([]byte(output), out); err != nil {
		t.Fatalf("%v: stdout is not a single JSON value: %v\n%s", args, err, output)
	}
}

// openStore makes sure the cached store is initialized for direct calls.
func openStore(t *testing.T) context.Context {
	t.Helper()
	ctx := context.Background()
	if err := ensureStore(ctx); err != nil {
		t.Fatalf("ensureStore: %v", err)
	}
	return ctx
}
