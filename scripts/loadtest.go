// Loadtest hammers a running file server with concurrent GET requests and
// checks that every client received the same bytes.
//
// Usage:
//
//	go run loadtest.go -url http://localhost:8080/index.html -concurrency 20 -requests 2000
//	go run loadtest.go -url http://localhost:8080/big.bin -concurrency 50 -requests 500 -csv runs.csv -out summary.json
//
// It reports:
//   - status code and transfer-encoding distribution
//   - body digests; more than one digest for a 200 means a torn transfer
//   - latency percentiles (p50, p90, p95, p99) and throughput
package main

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
)

type result struct {
	idx      int
	status   int
	encoding string
	bytes    int64
	digest   string
	duration time.Duration
	err      error
}

type summary struct {
	Target        string           `json:"target"`
	Requests      int              `json:"requests"`
	Concurrency   int              `json:"concurrency"`
	Success       int64            `json:"success"`
	Failure       int64            `json:"failure"`
	BytesReceived int64            `json:"bytes_received"`
	DurationMS    int64            `json:"duration_ms"`
	ThroughputRPS float64          `json:"throughput_rps"`
	StatusCodes   map[int]int      `json:"status_codes"`
	Encodings     map[string]int   `json:"encodings"`
	Digests       map[string]int   `json:"digests"`
	LatencyMS     map[string]int64 `json:"latency_ms"`
}

func main() {
	var (
		url         = flag.String("url", "http://localhost:8080/index.html", "Target URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent clients")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		timeoutSec  = flag.Int("timeout", 10, "Per-request timeout in seconds")
		outJSON     = flag.String("out", "", "Write JSON summary to this file (optional)")
		outCSV      = flag.String("csv", "", "Write per-request CSV to this file (optional)")
		verbose     = flag.Bool("v", false, "Verbose per-request logging to stdout")
	)
	flag.Parse()

	// The server closes every connection, so pooling buys nothing.
	client := &http.Client{
		Timeout:   time.Duration(*timeoutSec) * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}

	var csvWriter *csv.Writer
	if *outCSV != "" {
		f, err := os.Create(*outCSV)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create csv file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		csvWriter = csv.NewWriter(f)
		csvWriter.Write([]string{"idx", "status", "encoding", "bytes", "digest", "duration_ms", "error"})
	}

	jobs := make(chan int)
	results := make(chan result, *concurrency)
	var success, failure atomic.Int64

	start := time.Now()

	var wg sync.WaitGroup
	for worker := 0; worker < *concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				r := fetch(client, *url, idx)
				if r.err == nil && r.status == http.StatusOK {
					success.Inc()
				} else {
					failure.Inc()
				}
				results <- r
			}
		}()
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	sum := summary{
		Target:      *url,
		Requests:    *requests,
		Concurrency: *concurrency,
		StatusCodes: map[int]int{},
		Encodings:   map[string]int{},
		Digests:     map[string]int{},
	}
	latencies := make([]time.Duration, 0, *requests)

	for r := range results {
		latencies = append(latencies, r.duration)

		if r.err != nil {
			sum.StatusCodes[0]++
		} else {
			sum.StatusCodes[r.status]++
			sum.Encodings[r.encoding]++
			sum.BytesReceived += r.bytes
			if r.status == http.StatusOK {
				sum.Digests[r.digest]++
			}
		}

		if csvWriter != nil {
			errText := ""
			if r.err != nil {
				errText = r.err.Error()
			}
			csvWriter.Write([]string{
				strconv.Itoa(r.idx),
				strconv.Itoa(r.status),
				r.encoding,
				strconv.FormatInt(r.bytes, 10),
				r.digest,
				fmt.Sprintf("%.3f", float64(r.duration.Microseconds())/1000.0),
				errText,
			})
		}

		if *verbose {
			fmt.Printf("idx=%d status=%d encoding=%s bytes=%d dur=%v err=%v\n",
				r.idx, r.status, r.encoding, r.bytes, r.duration, r.err)
		}
	}

	if csvWriter != nil {
		csvWriter.Flush()
	}

	elapsed := time.Since(start)
	sum.Success = success.Load()
	sum.Failure = failure.Load()
	sum.DurationMS = elapsed.Milliseconds()
	sum.ThroughputRPS = float64(*requests) / elapsed.Seconds()
	sum.LatencyMS = percentiles(latencies)

	printSummary(sum)
	fmt.Printf("\nGOMAXPROCS=%d  NumGoroutine=%d\n", runtime.GOMAXPROCS(0), runtime.NumGoroutine())

	if *outJSON != "" {
		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.Encode(sum)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if sum.Failure > 0 || len(sum.Digests) > 1 {
		os.Exit(2)
	}
}

func fetch(client *http.Client, url string, idx int) result {
	start := time.Now()
	r := result{idx: idx}

	resp, err := client.Get(url)
	if err != nil {
		r.err = err
		r.duration = time.Since(start)
		return r
	}
	defer resp.Body.Close()

	h := sha256.New()
	r.bytes, r.err = io.Copy(h, resp.Body)
	r.duration = time.Since(start)
	r.status = resp.StatusCode
	r.digest = hex.EncodeToString(h.Sum(nil))[:16]

	r.encoding = "content-length"
	if slices.Contains(resp.TransferEncoding, "chunked") {
		r.encoding = "chunked"
	}
	return r
}

func percentiles(latencies []time.Duration) map[string]int64 {
	out := map[string]int64{}
	if len(latencies) == 0 {
		return out
	}

	slices.Sort(latencies)
	pick := func(p float64) int64 {
		return latencies[int(float64(len(latencies)-1)*p)].Milliseconds()
	}

	out["min"] = latencies[0].Milliseconds()
	out["p50"] = pick(0.50)
	out["p90"] = pick(0.90)
	out["p95"] = pick(0.95)
	out["p99"] = pick(0.99)
	out["max"] = latencies[len(latencies)-1].Milliseconds()
	return out
}

func printSummary(sum summary) {
	fmt.Println("--- File Server Load Test ---")
	fmt.Printf("Target: %s\n", sum.Target)
	fmt.Printf("Requests: %d  Concurrency: %d\n", sum.Requests, sum.Concurrency)
	fmt.Printf("Success: %d  Failure: %d  Bytes: %d\n", sum.Success, sum.Failure, sum.BytesReceived)
	fmt.Printf("Duration: %dms  Throughput: %.2f req/s\n", sum.DurationMS, sum.ThroughputRPS)

	fmt.Println("\nStatus codes (0 = transport error):")
	codes := make([]int, 0, len(sum.StatusCodes))
	for code := range sum.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, sum.StatusCodes[code])
	}

	fmt.Println("\nTransfer encodings:")
	for enc, n := range sum.Encodings {
		fmt.Printf("  %s -> %d\n", enc, n)
	}

	fmt.Println("\nBody digests of 200 responses:")
	for digest, n := range sum.Digests {
		fmt.Printf("  %s -> %d\n", digest, n)
	}
	if len(sum.Digests) > 1 {
		fmt.Println("  WARNING: clients received different bodies")
	}

	fmt.Println("\nLatency (ms):")
	for _, k := range []string{"min", "p50", "p90", "p95", "p99", "max"} {
		if v, ok := sum.LatencyMS[k]; ok {
			fmt.Printf("  %s=%d", k, v)
		}
	}
	fmt.Println()
}
