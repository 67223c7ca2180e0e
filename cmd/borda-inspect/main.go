// Command borda-inspect dumps the state of a local replica: per-collection
// document counts, sync cursors and on-disk size. Run it against a stopped
// agent; pebble takes an exclusive lock.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/stewones/borda-sub001/pkg/client/local"
	"github.com/stewones/borda-sub001/pkg/config"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
)

func main() {
	cfgPath := flag.String("config", "./borda.yaml", "path to config file")
	dbPath := flag.String("db", "", "replica path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *cfgPath, err)
		os.Exit(2)
	}
	path := cfg.Client.DBPath
	if *dbPath != "" {
		path = *dbPath
	}

	reg, err := schema.NewRegistry(cfg.Collections)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid collections config: %v\n", err)
		os.Exit(2)
	}
	store, err := local.Open(path, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open replica at %s: %v\n", path, err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Printf("replica: %s (%s on disk)\n\n", path, humanize.Bytes(uint64(dirSize(path))))
	for _, name := range reg.Names() {
		docs, err := store.List(name, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list %s: %v\n", name, err)
			continue
		}
		fmt.Printf("%s: %s documents\n", name, humanize.Comma(int64(len(docs))))
		for _, act := range []model.SyncActivity{model.ActivityRecent, model.ActivityOldest} {
			cur, ok, err := store.Cursor(name, act)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  cursor %s: %v\n", act, err)
				continue
			}
			if !ok {
				fmt.Printf("  %s: no cursor\n", act)
				continue
			}
			fmt.Printf("  %s: synced=%s drained=%v\n", act, cur.Synced, cur.Drained)
		}
	}
}

// dirSize walks the replica directory; 0 on any error is fine for display.
func dirSize(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
