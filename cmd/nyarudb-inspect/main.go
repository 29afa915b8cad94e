// main.go implements the nyarudb inspector CLI: it opens a store directory
// read-only-in-spirit (Open still rebuilds in-memory state, Close re-persists
// each collection's index files, and -explain-field against a collection
// that doesn't exist fails instead of creating it) and prints its
// statistics either as pretty text or JSON. It also
// supports periodic watch mode and plan explanation for a single collection.
//
// © 2025 nyarudb authors. MIT License.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Voskan/nyarudb"
	"github.com/Voskan/nyarudb/internal/planner"
)

var version = "dev"

type options struct {
	root       string
	collection string
	equalField string
	equalValue string
	json       bool
	watch      bool
	interval   time.Duration
	version    bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.root, "root", "", "path to a nyarudb store directory")
	flag.StringVar(&opts.collection, "collection", "", "limit output to one collection")
	flag.StringVar(&opts.equalField, "explain-field", "", "field name for an Equal predicate, passed to Explain")
	flag.StringVar(&opts.equalValue, "explain-value", "", "value for -explain-field's Equal predicate")
	flag.BoolVar(&opts.json, "json", false, "print machine-readable JSON instead of a pretty summary")
	flag.BoolVar(&opts.watch, "watch", false, "re-print statistics every -interval until interrupted")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "refresh interval for -watch")
	flag.BoolVar(&opts.version, "version", false, "print the inspector's version and exit")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	if opts.version {
		fmt.Println(version)
		return
	}
	if opts.root == "" {
		fatal(fmt.Errorf("-root is required"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	store, err := nyarudb.Open(opts.root)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	if opts.watch {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()
		for {
			if err := dumpOnce(store, opts); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			select {
			case <-ticker.C:
				continue
			case <-ctx.Done():
				return
			}
		}
	}

	if err := dumpOnce(store, opts); err != nil {
		fatal(err)
	}
}

func dumpOnce(store *nyarudb.Store, opts *options) error {
	if opts.equalField != "" {
		return dumpExplain(store, opts)
	}

	global, collections, err := store.Stats()
	if err != nil {
		return err
	}

	if opts.collection != "" {
		stat, ok := collections[opts.collection]
		if !ok {
			return fmt.Errorf("unknown collection %q", opts.collection)
		}
		if opts.json {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stat)
		}
		fmt.Printf("%-20s shards=%d documents=%d bytes=%d\n",
			stat.Name, stat.ShardCount, stat.DocumentCount, stat.ByteSize)
		return nil
	}

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Global      any `json:"global"`
			Collections any `json:"collections"`
		}{global, collections})
	}
	return prettyPrint(store, global)
}

func dumpExplain(store *nyarudb.Store, opts *options) error {
	if opts.collection == "" {
		return fmt.Errorf("-collection is required with -explain-field")
	}
	pred := planner.Predicate{Field: opts.equalField, Op: planner.Equal, Value: opts.equalValue}
	plan, err := store.Explain(opts.collection, []planner.Predicate{pred})
	if err != nil {
		return err
	}
	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	fmt.Printf("strategy:       %s\n", plan.Strategy)
	fmt.Printf("estimated docs: %d\n", plan.EstimatedDocs)
	fmt.Printf("shards skipped: %d\n", plan.ShardsToSkip)
	if plan.UsedIndex != nil {
		fmt.Printf("used index:     %s\n", *plan.UsedIndex)
	}
	return nil
}

func prettyPrint(store *nyarudb.Store, global any) error {
	fmt.Printf("Collections: %v\n", global)
	for _, name := range store.ListCollections() {
		count, err := store.Count(name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-20s documents=%d\n", name, count)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "nyarudb-inspect:", err)
	os.Exit(1)
}
