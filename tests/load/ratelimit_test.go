//go:build load

// Package load contains load tests that are excluded from regular CI runs.
// Run with: go test -tags load -count=1 -timeout 60s ./tests/load/
package load

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/CivStat/MetricBoard/internal/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestRateLimitSustainedLoad runs 10 goroutines x 100 requests from the same
// IP against a rate=10 burst=10 limiter. With 1000 requests completed
// near-instantly, most should be rate-limited since the bucket only starts
// with 10 tokens and refills at 10/sec.
func TestRateLimitSustainedLoad(t *testing.T) {
	rl := middleware.NewRateLimiter(10, 10)
	handler := rl.Handler(okHandler())

	const goroutines = 10
	const reqsPerGoroutine = 100

	var ok, limited atomic.Int64
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range reqsPerGoroutine {
				req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
				req.RemoteAddr = "10.0.0.1"
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				switch rec.Code {
				case http.StatusOK:
					ok.Add(1)
				case http.StatusTooManyRequests:
					limited.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	total := ok.Load() + limited.Load()
	limitedPct := float64(limited.Load()) / float64(total) * 100
	t.Logf("total=%d ok=%d limited=%d (%.1f%% rejected)", total, ok.Load(), limited.Load(), limitedPct)

	if limited.Load() == 0 {
		t.Error("expected some requests to be rate-limited")
	}
	if limitedPct < 80 {
		t.Errorf("expected >80%% rate-limited under sustained load, got %.1f%%", limitedPct)
	}
}

// TestRateLimitPerIPIsolation verifies that 2 IPs have independent buckets.
func TestRateLimitPerIPIsolation(t *testing.T) {
	const burst = 5
	rl := middleware.NewRateLimiter(5, burst)
	handler := rl.Handler(okHandler())

	doRequests := func(ip string, count int) (ok, limited int) {
		for range count {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = ip
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			switch rec.Code {
			case http.StatusOK:
				ok++
			case http.StatusTooManyRequests:
				limited++
			}
		}
		return
	}

	ok1, lim1 := doRequests("10.0.0.1", burst+3)
	if ok1 != burst || lim1 != 3 {
		t.Errorf("IP1: expected ok=%d limited=3, got ok=%d limited=%d", burst, ok1, lim1)
	}

	// IP2 should be unaffected
	ok2, lim2 := doRequests("10.0.0.2", burst)
	if ok2 != burst || lim2 != 0 {
		t.Errorf("IP2: expected ok=%d limited=0, got ok=%d limited=%d", burst, ok2, lim2)
	}
}

// TestRateLimitConcurrentBucketCreation sends 1 request each from 100 unique
// IPs concurrently and verifies that all succeed and all buckets are created.
func TestRateLimitConcurrentBucketCreation(t *testing.T) {
	const numIPs = 100
	rl := middleware.NewRateLimiter(1, 1)
	handler := rl.Handler(okHandler())

	var wg sync.WaitGroup
	var ok atomic.Int64
	wg.Add(numIPs)

	for i := range numIPs {
		go func(idx int) {
			defer wg.Done()
			ip := fmt.Sprintf("10.%d.%d.%d", idx/65536, (idx/256)%256, idx%256)
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = ip
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code == http.StatusOK {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if ok.Load() != numIPs {
		t.Errorf("expected all %d first requests to succeed, got %d", numIPs, ok.Load())
	}
	if rl.Len() != numIPs {
		t.Errorf("expected %d buckets, got %d", numIPs, rl.Len())
	}
}
