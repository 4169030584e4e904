package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/brewing"
)

func main() {
	count := flag.Int("count", 1000, "Number of specifications to generate")
	keep := flag.Bool("keep", false, "Keep the benchmark project after running")
	flag.Parse()

	benchDir, err := os.MkdirTemp("", "brewing_bench_")
	if err != nil {
		panic(err)
	}
	defer func() {
		if !*keep {
			os.RemoveAll(benchDir)
		} else {
			fmt.Printf("Keeping bench dir: %s\n", benchDir)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	opts := []brewing.Option{
		brewing.WithLogger(logger),
		brewing.WithAdapter(brewing.AdapterFS),
		brewing.WithAutoInit(true),
		brewing.WithVersioned(false), // measure io and parsing, not git
		brewing.WithWatch(false),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	ws, err := brewing.Open(benchDir, opts...)
	if err != nil {
		panic(err)
	}

	// Inserts are visible at once; persistence catches up in the background.
	fmt.Printf("Inserting %d specifications in %s...\n", *count, benchDir)
	start := time.Now()
	for i := 0; i < *count; i++ {
		if _, err := ws.Store.Insert(brewing.Specification{Name: fmt.Sprintf("Feature %d", i)}); err != nil {
			panic(err)
		}
	}
	optimistic := time.Since(start)
	if err := ws.Store.Wait(ctx); err != nil {
		panic(err)
	}
	persisted := time.Since(start)
	if err := ws.Close(ctx); err != nil {
		panic(err)
	}

	// A fresh workspace simulates a new CLI run. The first load parses every
	// file and writes the index; the second is served from it.
	cold := timeOpen(benchDir, opts)
	warm := timeOpen(benchDir, opts)

	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Benchmark Result (%d specifications):\n", *count)
	fmt.Printf("  Visible:   %v\n", optimistic)
	fmt.Printf("  Persisted: %v\n", persisted)
	fmt.Printf("  Cold load: %v\n", cold)
	fmt.Printf("  Warm load: %v\n", warm)
	fmt.Printf("--------------------------------------------------\n")
}

func timeOpen(dir string, opts []brewing.Option) time.Duration {
	start := time.Now()
	ws, err := brewing.Open(dir, opts...)
	if err != nil {
		panic(err)
	}
	elapsed := time.Since(start)
	fmt.Printf("Loaded %d specifications in %v\n", ws.Store.Len(), elapsed)
	_ = ws.Close(context.Background())
	return elapsed
}
