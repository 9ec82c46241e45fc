package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

func testConfig() GatewayConfig {
	return GatewayConfig{
		MaxRetries:  2,
		Backoff:     time.Millisecond,
		CallTimeout: time.Second,
	}
}

func TestExecuteFailsOverToNextEndpoint(t *testing.T) {
	g := newGatewayForTest([]string{"https://a.example", "https://b.example"}, testConfig(), nil)

	attempts := 0
	err := g.Execute(context.Background(), func(ctx context.Context, _ *ethclient.Client) error {
		attempts++
		if attempts == 1 {
			return errors.New("first endpoint down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteStartsFromLastGoodEndpoint(t *testing.T) {
	g := newGatewayForTest([]string{"https://a.example", "https://b.example"}, testConfig(), nil)

	calls := 0
	op := func(ctx context.Context, _ *ethclient.Client) error {
		calls++
		if calls == 1 {
			return errors.New("down")
		}
		return nil
	}
	if err := g.Execute(context.Background(), op); err != nil {
		t.Fatalf("first execute failed: %v", err)
	}

	// The second endpoint answered, so the next call must start there.
	if err := g.Execute(context.Background(), func(ctx context.Context, _ *ethclient.Client) error {
		return nil
	}); err != nil {
		t.Fatalf("second execute failed: %v", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.start != 1 {
		t.Fatalf("expected start index 1, got %d", g.start)
	}
}

func TestExecuteSkipsRecentlyFailingEndpoint(t *testing.T) {
	g := newGatewayForTest([]string{"https://a.example", "https://b.example"}, testConfig(), nil)

	g.mu.Lock()
	g.endpoints[0].failureCount = maxConsecutiveFailures + 1
	g.endpoints[0].lastFailure = time.Now()
	g.mu.Unlock()

	attempts := 0
	if err := g.Execute(context.Background(), func(ctx context.Context, _ *ethclient.Client) error {
		attempts++
		return nil
	}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected the cooling endpoint to be skipped, got %d attempts", attempts)
	}
}

func TestExecuteExhaustsAllPasses(t *testing.T) {
	g := newGatewayForTest([]string{"https://a.example"}, testConfig(), nil)

	opErr := errors.New("permanently down")
	attempts := 0
	err := g.Execute(context.Background(), func(ctx context.Context, _ *ethclient.Client) error {
		attempts++
		return opErr
	})
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Fatalf("expected ErrAllEndpointsFailed, got %v", err)
	}
	if !errors.Is(err, opErr) {
		t.Fatalf("expected wrapped op error, got %v", err)
	}
	if attempts != testConfig().MaxRetries {
		t.Fatalf("expected %d attempts, got %d", testConfig().MaxRetries, attempts)
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	g := newGatewayForTest([]string{"https://a.example"}, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := g.Execute(ctx, func(ctx context.Context, _ *ethclient.Client) error {
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEndpointsSnapshot(t *testing.T) {
	g := newGatewayForTest([]string{"https://a.example/key123"}, testConfig(), nil)

	g.mu.Lock()
	g.endpoints[0].failureCount = 2
	g.mu.Unlock()

	snap := g.Endpoints()
	if got := snap["https://a.example/***"]; got != 2 {
		t.Fatalf("expected failure count 2 under masked url, got %v in %v", got, snap)
	}
}

func TestMaskURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://bsc-dataseed1.binance.org", "https://bsc-dataseed1.binance.org"},
		{"https://rpc.example.com/v1/supersecretkey", "https://rpc.example.com/***"},
		{"wss://node.example.org/ws", "wss://node.example.org/***"},
		{"not a url", "***"},
	}
	for _, tc := range cases {
		if got := MaskURL(tc.in); got != tc.want {
			t.Fatalf("MaskURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
