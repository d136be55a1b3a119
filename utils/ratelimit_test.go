package utils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// TestTokenBucketLimiter_BasicFunctionality tests basic rate limiting
func TestTokenBucketLimiter_BasicFunctionality(t *testing.T) {
	// Create rate limiter with 1000 bytes per second
	limiter := NewTokenBucketLimiter(1000)

	ctx := context.Background()

	// First request should succeed immediately
	start := time.Now()
	err := limiter.Wait(ctx, 500)
	if err != nil {
		t.Fatalf("First wait failed: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed > 10*time.Millisecond {
		t.Fatalf("First wait took too long: %v", elapsed)
	}

	// Second request should also succeed immediately (still within bucket)
	start = time.Now()
	err = limiter.Wait(ctx, 500)
	if err != nil {
		t.Fatalf("Second wait failed: %v", err)
	}
	elapsed = time.Since(start)
	if elapsed > 10*time.Millisecond {
		t.Fatalf("Second wait took too long: %v", elapsed)
	}

	// Third request should be delayed (bucket exhausted)
	start = time.Now()
	err = limiter.Wait(ctx, 100)
	if err != nil {
		t.Fatalf("Third wait failed: %v", err)
	}
	elapsed = time.Since(start)
	// Should wait at least 100ms for 100 bytes at 1000 bytes/sec
	if elapsed < 50*time.Millisecond {
		t.Fatalf("Third wait was too fast: %v", elapsed)
	}
}

// TestTokenBucketLimiter_NoRateLimit tests behavior with no rate limit
func TestTokenBucketLimiter_NoRateLimit(t *testing.T) {
	// Create rate limiter with 0 (no limit)
	limiter := NewTokenBucketLimiter(0)

	ctx := context.Background()

	// All requests should succeed immediately
	for i := 0; i < 10; i++ {
		start := time.Now()
		err := limiter.Wait(ctx, 1000000) // Large request
		if err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
		elapsed := time.Since(start)
		if elapsed > 10*time.Millisecond {
			t.Fatalf("Wait %d took too long: %v", i, elapsed)
		}
	}
}

// TestTokenBucketLimiter_ContextCancellation tests context cancellation
func TestTokenBucketLimiter_ContextCancellation(t *testing.T) {
	// Create rate limiter with very low rate
	limiter := NewTokenBucketLimiter(1) // 1 byte per second

	// Create context with short timeout
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Request large amount that would require long wait
	start := time.Now()
	err := limiter.Wait(ctx, 1000)
	elapsed := time.Since(start)

	// Should fail with context deadline exceeded
	if err == nil {
		t.Fatalf("Expected context deadline exceeded error")
	}
	if err != context.DeadlineExceeded {
		t.Fatalf("Expected context deadline exceeded, got: %v", err)
	}

	// Should not wait much longer than timeout
	if elapsed > 100*time.Millisecond {
		t.Fatalf("Wait took too long after context cancellation: %v", elapsed)
	}
}

// TestTokenBucketLimiter_SetRate tests dynamic rate changes
func TestTokenBucketLimiter_SetRate(t *testing.T) {
	limiter := NewTokenBucketLimiter(1000)

	ctx := context.Background()

	// Consume initial bucket
	err := limiter.Wait(ctx, 1000)
	if err != nil {
		t.Fatalf("Initial wait failed: %v", err)
	}

	// Change rate to higher value
	limiter.SetRate(2000)

	// Wait a bit for bucket to refill at new rate
	time.Sleep(100 * time.Millisecond)

	// Should be able to consume tokens at new rate
	start := time.Now()
	err = limiter.Wait(ctx, 200) // Request 200 bytes
	if err != nil {
		t.Fatalf("Wait failed after rate increase: %v", err)
	}
	elapsed := time.Since(start)

	// With 2000 bytes/sec and 100ms refill time, should have ~200 bytes available
	if elapsed > 50*time.Millisecond {
		t.Fatalf("Wait took too long after rate increase: %v", elapsed)
	}
}

// TestParseRateLimit tests bandwidth parsing functionality
func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
		hasError bool
	}{
		{"Empty string", "", 0, false},
		{"Pure number", "1000", 1000, false},
		{"Bytes", "500B", 500, false},
		{"Kilobytes", "5K", 5 * 1024, false},
		{"Kilobytes with B", "5KB", 5 * 1024, false},
		{"Megabytes", "10M", 10 * 1024 * 1024, false},
		{"Megabytes with B", "10MB", 10 * 1024 * 1024, false},
		{"Gigabytes", "2G", 2 * 1024 * 1024 * 1024, false},
		{"Gigabytes with B", "2GB", 2 * 1024 * 1024 * 1024, false},
		{"Terabytes", "1T", 1024 * 1024 * 1024 * 1024, false},
		{"Terabytes with B", "1TB", 1024 * 1024 * 1024 * 1024, false},
		{"Decimal megabytes", "1.5M", int64(1.5 * 1024 * 1024), false},
		{"Decimal gigabytes", "0.5G", int64(0.5 * 1024 * 1024 * 1024), false},
		{"With whitespace", "  5M  ", 5 * 1024 * 1024, false},
		{"Invalid suffix", "5X", 0, true},
		{"Invalid number", "abcM", 0, true},
		{"Negative number", "-5M", 0, true},
		{"Too short", "M", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseRateLimit(tt.input)
		
			if tt.hasError {
				if err == nil {
					t.Errorf("Expected error for input %q, but got none", tt.input)
				}
			} else {
				if err != nil {
					t.Errorf("Unexpected error for input %q: %v", tt.input, err)
				}
				if result != tt.expected {
					t.Errorf("For input %q, expected %d, got %d", tt.input, tt.expected, result)
				}
			}
		})
	}
}

// TestTokenBucketLimiter_ConcurrentAccess tests concurrent waits on one limiter
func TestTokenBucketLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewTokenBucketLimiter(1 << 20)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(ctx, 1024); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent wait failed: %v", err)
	}
}

func TestRateLimitedReader(t *testing.T) {
	t.Run("passes_data_through", func(t *testing.T) {
		payload := bytes.Repeat([]byte("a"), 100*1024)
		reader := NewRateLimitedReader(context.Background(), bytes.NewReader(payload), NewTokenBucketLimiter(0))

		got, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
		}
	})

	t.Run("throttles", func(t *testing.T) {
		// bucket starts full at 1000 bytes; the remaining 200 cost ~200ms
		reader := NewRateLimitedReader(context.Background(), bytes.NewReader(make([]byte, 1200)), NewTokenBucketLimiter(1000))

		start := time.Now()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			t.Fatalf("copy failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
			t.Errorf("expected throttling, copy took %v", elapsed)
		}
	})

	t.Run("context_cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		reader := NewRateLimitedReader(ctx, bytes.NewReader(make([]byte, 4096)), NewTokenBucketLimiter(1))

		_, err := io.ReadAll(reader)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestTokenBucketLimiter_Rate(t *testing.T) {
	limiter := NewTokenBucketLimiter(500).(*TokenBucketLimiter)
	limiter.SetRate(0)

	if limiter.Rate() != 0 {
		t.Errorf("Expected rate 0 after SetRate(0), got %d", limiter.Rate())
	}
	if err := limiter.Wait(context.Background(), 1<<30); err != nil {
		t.Errorf("Wait with limiting disabled failed: %v", err)
	}
}
