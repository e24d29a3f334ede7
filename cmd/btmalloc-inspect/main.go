// Command btmalloc-inspect exercises a Heap from the command line: a plain
// allocate/free demonstration and a concurrent stress subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/heapkit/btmalloc/internal/allocator"
	"github.com/heapkit/btmalloc/internal/cli"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "demo":
		runDemo(os.Args[2:])
	case "stress":
		runStress(os.Args[2:])
	case "version", "--version", "-v":
		cli.PrintVersion("btmalloc-inspect", len(os.Args) > 2 && os.Args[2] == "--json")
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: btmalloc-inspect <demo|stress|version> [flags]")
}

func runDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	size := fs.Uint64("size", 64, "allocation size in bytes")
	debug := fs.Bool("debug", false, "enable verbose allocator logging")
	fs.Parse(args)

	h, err := allocator.NewHeap(allocator.WithDebug(*debug))
	if err != nil {
		cli.ExitWithError("NewHeap: %v", err)
	}

	addr, err := h.Allocate(uintptr(*size), 8)
	if err != nil {
		cli.ExitWithError("Allocate(%d): %v", *size, err)
	}

	fmt.Printf("allocated %d bytes at 0x%x\n", *size, addr)

	grown, err := h.Reallocate(addr, uintptr(*size)*2)
	if err != nil {
		cli.ExitWithError("Reallocate: %v", err)
	}

	fmt.Printf("reallocated to %d bytes at 0x%x\n", *size*2, grown)

	if err := h.Free(grown); err != nil {
		cli.ExitWithError("Free: %v", err)
	}

	fmt.Println("freed")
}

// runStress drives many goroutines allocating and freeing concurrently
// through one Heap, exercising the CAS discipline under real contention.
func runStress(args []string) {
	fs := flag.NewFlagSet("stress", flag.ExitOnError)
	workers := fs.Int("workers", 8, "number of concurrent goroutines")
	iterations := fs.Int("iterations", 10_000, "allocate/free cycles per goroutine")
	size := fs.Uint64("size", 16, "allocation size in bytes")
	fs.Parse(args)

	h, err := allocator.NewHeap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "NewHeap: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	start := time.Now()

	for w := 0; w < *workers; w++ {
		g.Go(func() error {
			handle := h.Bind()

			for i := 0; i < *iterations; i++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				addr, err := handle.Allocate(uintptr(*size), 8)
				if err != nil {
					return fmt.Errorf("allocate: %w", err)
				}

				if err := handle.Free(addr); err != nil {
					return fmt.Errorf("free: %w", err)
				}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "stress failed: %v\n", err)
		os.Exit(1)
	}

	elapsed := time.Since(start)
	total := *workers * *iterations

	fmt.Printf("%d allocate/free cycles across %d goroutines in %s (%.0f ops/sec)\n",
		total, *workers, elapsed, float64(total)/elapsed.Seconds())
}
