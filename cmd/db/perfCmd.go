package db

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/arangovst/cmd/util"
	"github.com/ValentinKolb/arangovst/lib/cache"
	"github.com/ValentinKolb/arangovst/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for VST servers",
		Long:    "Runs concurrent requests against the server and reports throughput and latency percentiles. A temporary collection is created and dropped afterwards.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfCollection       = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfRequests         = 1000
	perfSkip             = make([]string, 0)
)

// benchmark is a single named load test
type benchmark struct {
	name    string
	prepare func(ctx context.Context) error
	op      func(ctx context.Context, i int) error
}

// benchmarkResult holds the measurements of one benchmark
type benchmarkResult struct {
	name     string
	skipped  bool
	timer    metrics.Timer
	errors   int64
	duration time.Duration
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent workers"))
	key = "requests"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of requests per benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the document for the insert-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different documents to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfRequests = max(viper.GetInt("requests"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for VST servers")

	// Print configuration
	config := vstClient.Config()
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Requests: %d\n", perfNumThreads, perfRequests)
	fmt.Println()

	ctx := cmd.Context()
	if _, err := vstClient.CreateCollection(ctx, perfCollection, cache.CollectionDocument).Await(ctx); err != nil && !common.IsStatus(err, 409) {
		return fmt.Errorf("failed to create collection %s: %w", perfCollection, err)
	}
	defer func() {
		if _, err := vstClient.DropCollection(ctx, perfCollection).Await(ctx); err != nil {
			log.Printf("error dropping collection %s: %v\n", perfCollection, err)
		}
	}()

	fmt.Println("starting tests...")

	registry := metrics.NewRegistry()
	results := make([]benchmarkResult, 0)
	for _, b := range benchmarks() {
		result := runBenchmark(ctx, registry, b)
		printResult(result)
		results = append(results, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return err
		}
	}
	return nil
}

// benchmarks returns all load tests in the order they are run
func benchmarks() []benchmark {
	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	prepareKeys := func(ctx context.Context) error {
		for i := 0; i < perfKeySpread; i++ {
			doc := map[string]interface{}{"_key": perfKey(i), "n": i}
			if _, err := vstClient.InsertDocument(ctx, perfCollection, doc).Await(ctx); err != nil && !common.IsStatus(err, 409) {
				return err
			}
		}
		return nil
	}

	return []benchmark{
		{
			name: "version",
			op: func(ctx context.Context, _ int) error {
				_, err := vstClient.GetVersion(ctx).Await(ctx)
				return err
			},
		},
		{
			name: "insert",
			op: func(ctx context.Context, i int) error {
				_, err := vstClient.InsertDocument(ctx, perfCollection, map[string]interface{}{"n": i}).Await(ctx)
				return err
			},
		},
		{
			name: "insert-large",
			op: func(ctx context.Context, i int) error {
				_, err := vstClient.InsertDocument(ctx, perfCollection, map[string]interface{}{"n": i, "value": largeValue}).Await(ctx)
				return err
			},
		},
		{
			name:    "get",
			prepare: prepareKeys,
			op: func(ctx context.Context, i int) error {
				_, err := vstClient.GetDocument(ctx, cache.NewHandle(perfCollection, perfKey(i)), nil).Await(ctx)
				return err
			},
		},
		{
			name:    "replace",
			prepare: prepareKeys,
			op: func(ctx context.Context, i int) error {
				return replaceIgnoringConflicts(ctx, i)
			},
		},
		{
			name:    "mixed",
			prepare: prepareKeys,
			op: func(ctx context.Context, i int) error {
				var err error
				switch i % 4 {
				case 0:
					_, err = vstClient.GetVersion(ctx).Await(ctx)
				case 1:
					_, err = vstClient.InsertDocument(ctx, perfCollection, map[string]interface{}{"n": i}).Await(ctx)
				case 2:
					_, err = vstClient.GetDocument(ctx, cache.NewHandle(perfCollection, perfKey(i)), nil).Await(ctx)
				default:
					err = replaceIgnoringConflicts(ctx, i)
				}
				return err
			},
		},
	}
}

// runBenchmark runs perfRequests operations on perfNumThreads workers
func runBenchmark(ctx context.Context, registry metrics.Registry, b benchmark) benchmarkResult {
	result := benchmarkResult{name: b.name, timer: metrics.GetOrRegisterTimer(b.name, registry)}
	if shouldSkip(b.name) {
		result.skipped = true
		return result
	}
	if b.prepare != nil {
		if err := b.prepare(ctx); err != nil {
			log.Printf("(%s) - error preparing benchmark: %v\n", b.name, err)
			result.skipped = true
			return result
		}
	}

	var (
		next   atomic.Int64
		errors atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < perfNumThreads; w++ {
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= perfRequests || gctx.Err() != nil {
					return nil
				}
				opStart := time.Now()
				err := b.op(gctx, i)
				result.timer.UpdateSince(opStart)
				if err != nil {
					// Only log the first errors
					if errors.Add(1) <= 5 {
						log.Printf("(%s) - error performing operation: %v\n", b.name, err)
					}
				}
			}
		})
	}
	_ = g.Wait()

	result.duration = time.Since(start)
	result.errors = errors.Load()
	return result
}

// replaceIgnoringConflicts replaces a document, concurrent workers may
// invalidate the cached revision which is not counted as error
func replaceIgnoringConflicts(ctx context.Context, i int) error {
	_, err := vstClient.ReplaceDocument(ctx, cache.NewHandle(perfCollection, perfKey(i)), map[string]interface{}{"n": i}).Await(ctx)
	if common.IsStatus(err, 412) {
		return nil
	}
	return err
}

func perfKey(i int) string {
	return fmt.Sprintf("%s-%d", perfKeyPrefix, i%perfKeySpread)
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(result benchmarkResult) {
	if result.skipped {
		fmt.Printf("%-14sskipped\n", result.name)
		return
	}

	ps := result.timer.Percentiles([]float64{0.5, 0.95, 0.99})
	opsPerSec := float64(result.timer.Count()) / max(result.duration.Seconds(), 1e-9)

	// Print the formatted result
	fmt.Printf("%-14s%8.0f ops/sec\tp50=%-12s p95=%-12s p99=%-12s errors=%d\n",
		result.name, opsPerSec, time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), result.errors)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []benchmarkResult, config common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Skipped", "Requests", "Errors", "OpsPerSec", "Mean", "P50", "P95", "P99",
		"Endpoint", "Connections", "Selection", "ChunkSize", "Serializer",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, result := range results {
		ps := result.timer.Percentiles([]float64{0.5, 0.95, 0.99})
		opsPerSec := 0.0
		if !result.skipped {
			opsPerSec = float64(result.timer.Count()) / max(result.duration.Seconds(), 1e-9)
		}

		row := []string{
			result.name,
			strconv.FormatBool(result.skipped),
			strconv.FormatInt(result.timer.Count(), 10),
			strconv.FormatInt(result.errors, 10),
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(result.timer.Mean()).String(),
			time.Duration(ps[0]).String(),
			time.Duration(ps[1]).String(),
			time.Duration(ps[2]).String(),
			config.Connection.Endpoint(),
			strconv.Itoa(config.MaxConnections),
			string(config.Selection),
			strconv.Itoa(config.Connection.ChunkSize),
			config.Serializer,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", result.name, err)
		}
	}

	return nil
}
