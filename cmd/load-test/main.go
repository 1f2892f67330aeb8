package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Text        string `json:"text"`
	SimCardID   *int   `json:"simCardId,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type loadTestResult struct {
	TotalRequests   int
	SuccessCount    int32
	FailureCount    int32
	TotalDuration   time.Duration
	RequestsPerSec  float64
	AvgResponseTime time.Duration
	P95ResponseTime time.Duration
	MaxResponseTime time.Duration
	Errors          map[string]int
}

func runLoadTest(client *http.Client, url string, numRequests, concurrency int, simCardID *int) *loadTestResult {
	var (
		successCount int32
		failureCount int32
		latenciesMu  sync.Mutex
		latencies    = make([]time.Duration, 0, numRequests)
		errorsMu     sync.Mutex
		errs         = make(map[string]int)
		wg           sync.WaitGroup
		semaphore    = make(chan struct{}, concurrency)
	)

	record := func(key string) {
		atomic.AddInt32(&failureCount, 1)
		errorsMu.Lock()
		errs[key]++
		errorsMu.Unlock()
	}

	fmt.Printf("\n🚀 Sending %d SMS with concurrency %d\n", numRequests, concurrency)
	fmt.Printf("Target: %s\n", url)

	startTime := time.Now()
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(reqNum int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			body, _ := json.Marshal(sendRequest{
				PhoneNumber: fmt.Sprintf("+1555%07d", reqNum),
				Text:        fmt.Sprintf("load test message #%d", reqNum),
				SimCardID:   simCardID,
			})

			reqStart := time.Now()
			resp, err := client.Post(url, "application/json", bytes.NewReader(body))
			elapsed := time.Since(reqStart)

			latenciesMu.Lock()
			latencies = append(latencies, elapsed)
			latenciesMu.Unlock()

			if err != nil {
				record(err.Error())
				return
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNoContent {
				atomic.AddInt32(&successCount, 1)
				return
			}

			raw, _ := io.ReadAll(resp.Body)
			var e errorResponse
			if json.Unmarshal(raw, &e) == nil && e.Code != "" {
				record(fmt.Sprintf("HTTP %d %s", resp.StatusCode, e.Code))
				return
			}
			record(fmt.Sprintf("HTTP %d", resp.StatusCode))
		}(i)
	}
	wg.Wait()
	totalDuration := time.Since(startTime)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	res := &loadTestResult{
		TotalRequests:  numRequests,
		SuccessCount:   successCount,
		FailureCount:   failureCount,
		TotalDuration:  totalDuration,
		RequestsPerSec: float64(numRequests) / totalDuration.Seconds(),
		Errors:         errs,
	}
	if n := len(latencies); n > 0 {
		res.AvgResponseTime = sum / time.Duration(n)
		res.P95ResponseTime = latencies[(n*95)/100]
		res.MaxResponseTime = latencies[n-1]
	}
	return res
}

func printResults(r *loadTestResult) {
	fmt.Println("\n📊 Load Test Results")
	fmt.Printf("Total Requests:      %d\n", r.TotalRequests)
	fmt.Printf("✅ Sent:              %d (%.2f%%)\n", r.SuccessCount, float64(r.SuccessCount)/float64(r.TotalRequests)*100)
	fmt.Printf("❌ Failed:            %d (%.2f%%)\n", r.FailureCount, float64(r.FailureCount)/float64(r.TotalRequests)*100)
	fmt.Printf("⏱️  Total Duration:    %v\n", r.TotalDuration)
	fmt.Printf("⚡ Sends/sec:         %.2f\n", r.RequestsPerSec)
	fmt.Printf("📈 Avg Round Trip:    %v\n", r.AvgResponseTime)
	fmt.Printf("📈 P95 Round Trip:    %v\n", r.P95ResponseTime)
	fmt.Printf("⬆️  Max Round Trip:    %v\n", r.MaxResponseTime)

	if len(r.Errors) > 0 {
		fmt.Println("❌ Errors:")
		for msg, count := range r.Errors {
			fmt.Printf("   • %s: %d times\n", msg, count)
		}
	}
}

func main() {
	base := flag.String("url", "http://localhost:8080", "bridge base URL")
	requests := flag.Int("n", 100, "number of sends")
	concurrency := flag.Int("c", 10, "concurrent sends")
	sim := flag.Int("sim", -1, "SIM card id, -1 for the default SIM")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Minute}

	fmt.Println("🔍 Checking if bridge is running...")
	resp, err := client.Get(*base + "/health")
	if err != nil {
		fmt.Printf("❌ Cannot reach bridge at %s: %v\n", *base, err)
		return
	}
	resp.Body.Close()

	var simCardID *int
	if *sim >= 0 {
		simCardID = sim
	}
	printResults(runLoadTest(client, *base+"/api/sms", *requests, *concurrency, simCardID))
}
