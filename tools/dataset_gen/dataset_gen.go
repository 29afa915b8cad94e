package main

// dataset_gen.go generates deterministic JSON-lines document datasets for
// standalone benchmarking and seeding of nyarudb stores outside `go test`.
// Each line is one document: {"id":N,"region":R,"value":V}, where region is
// drawn uniformly or Zipf-distributed across a fixed label set.
//
// Usage:
//
//	go run ./tools/dataset_gen -n 1000000 -dist=zipf -seed=42 -out docs.jsonl
//
// Flags:
//
//	-n       number of documents to generate (default 1e6)
//	-dist    region distribution: "uniform" or "zipf" (default uniform)
//	-zipfs   Zipf s parameter (>1)  (default 1.2)
//	-zipfv   Zipf v parameter (>1)  (default 1.0)
//	-seed    RNG seed (default current time)
//	-out     output file (default stdout)
//
// © 2025 nyarudb authors. MIT License.

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

var regions = []string{"eu", "us", "apac", "latam", "mea"}

type document struct {
	ID     int    `json:"id"`
	Region string `json:"region"`
	Value  int64  `json:"value"`
}

func main() {
	var (
		n       = flag.Int("n", 1_000_000, "number of documents to generate")
		dist    = flag.String("dist", "uniform", "region distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>1)")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	rnd := rand.New(rand.NewSource(*seedVal))

	var pickRegion func() string
	switch *dist {
	case "uniform":
		pickRegion = func() string { return regions[rnd.Intn(len(regions))] }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV <= 0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >0")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, uint64(len(regions)-1))
		pickRegion = func() string { return regions[z.Uint64()] }
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	enc := json.NewEncoder(w)
	for i := 0; i < *n; i++ {
		doc := document{ID: i, Region: pickRegion(), Value: rnd.Int63n(1 << 20)}
		if err := enc.Encode(doc); err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
	}
}
