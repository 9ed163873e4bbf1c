package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()
	want := []string{"run", "serve", "schedule", "setup-db"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %s not registered: %v", name, err)
		}
	}

	run, _, _ := root.Find([]string{"run"})
	if run.Flags().Lookup("backfill-days") == nil {
		t.Fatalf("run is missing --backfill-days")
	}
}

func TestWriteJSONIndents(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := writeJSON(&buf, map[string]int{"total_items": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"total_items\": 3") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
