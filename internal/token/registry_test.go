package token

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xprotovox/bscradar/internal/cache"
	"github.com/0xprotovox/bscradar/internal/dex"
	"github.com/0xprotovox/bscradar/internal/multicall"
)

type fakeCaller struct {
	calls   int
	results []multicall.Result
	err     error
}

func (f *fakeCaller) Aggregate(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func packString(t *testing.T, method, value string) []byte {
	t.Helper()
	erc20, err := dex.ERC20ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	data, err := erc20.Methods[method].Outputs.Pack(value)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return data
}

func packDecimals(t *testing.T, value uint8) []byte {
	t.Helper()
	erc20, err := dex.ERC20ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	data, err := erc20.Methods["decimals"].Outputs.Pack(value)
	if err != nil {
		t.Fatalf("pack decimals: %v", err)
	}
	return data
}

func TestGetKnownTokenSkipsChain(t *testing.T) {
	caller := &fakeCaller{}
	r := NewRegistry(caller, cache.New(cache.Config{}, nil, nil), nil)

	info, err := r.Get(context.Background(), common.HexToAddress(WBNB))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if info.Symbol != "WBNB" || info.Decimals != 18 {
		t.Fatalf("unexpected info %+v", info)
	}
	if caller.calls != 0 {
		t.Fatalf("known token resolution hit the chain %d times", caller.calls)
	}
}

func TestGetManyFetchesAndCachesUnknownToken(t *testing.T) {
	addr := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	caller := &fakeCaller{
		results: []multicall.Result{
			{Success: true, ReturnData: packString(t, "name", "Mystery Token")},
			{Success: true, ReturnData: packString(t, "symbol", "MYST")},
			{Success: true, ReturnData: packDecimals(t, 9)},
		},
	}
	r := NewRegistry(caller, cache.New(cache.Config{}, nil, nil), nil)

	out, err := r.GetMany(context.Background(), []common.Address{addr})
	if err != nil {
		t.Fatalf("get many failed: %v", err)
	}
	info := out[addr]
	if info.Name != "Mystery Token" || info.Symbol != "MYST" || info.Decimals != 9 {
		t.Fatalf("unexpected info %+v", info)
	}

	// Second resolution must come from the cache.
	if _, err := r.GetMany(context.Background(), []common.Address{addr}); err != nil {
		t.Fatalf("cached get failed: %v", err)
	}
	if caller.calls != 1 {
		t.Fatalf("expected one chain batch, got %d", caller.calls)
	}
}

func TestGetManyFallsBackToUnknownOnBatchError(t *testing.T) {
	addr := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	caller := &fakeCaller{err: errors.New("rpc down")}
	r := NewRegistry(caller, cache.New(cache.Config{}, nil, nil), nil)

	out, err := r.GetMany(context.Background(), []common.Address{addr})
	if err == nil {
		t.Fatal("expected batch error to surface")
	}
	info := out[addr]
	if info.Symbol != "UNKNOWN" || info.Decimals != 18 {
		t.Fatalf("expected UNKNOWN fallback, got %+v", info)
	}
}

func TestGetManyUsesDefaultsForFailedSubCalls(t *testing.T) {
	addr := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")
	caller := &fakeCaller{
		results: []multicall.Result{
			{Success: false},
			{Success: true, ReturnData: packString(t, "symbol", "HALF")},
			{Success: false},
		},
	}
	r := NewRegistry(caller, cache.New(cache.Config{}, nil, nil), nil)

	out, err := r.GetMany(context.Background(), []common.Address{addr})
	if err != nil {
		t.Fatalf("get many failed: %v", err)
	}
	info := out[addr]
	if info.Symbol != "HALF" {
		t.Fatalf("symbol = %q, want HALF", info.Symbol)
	}
	if info.Name != "Unknown" || info.Decimals != 18 {
		t.Fatalf("expected defaults for failed sub-calls, got %+v", info)
	}
}

func TestBaseTokenSets(t *testing.T) {
	if got := len(BaseTokens()); got != 6 {
		t.Fatalf("base set size = %d, want 6", got)
	}
	fast := FastBaseTokens()
	if len(fast) != 3 {
		t.Fatalf("fast set size = %d, want 3", len(fast))
	}
	if fast[0] != common.HexToAddress(WBNB) {
		t.Fatalf("fast set must lead with WBNB")
	}
}

func TestSymbolClassifiers(t *testing.T) {
	if !IsStableSymbol("usdt") || IsStableSymbol("CAKE") {
		t.Fatal("stable classifier wrong")
	}
	if !IsWrapperSymbol("wbnb") || IsWrapperSymbol("WETH") {
		t.Fatal("wrapper classifier wrong")
	}
	if !IsEcosystemSymbol("Cake") || IsEcosystemSymbol("WBNB") {
		t.Fatal("ecosystem classifier wrong")
	}
	if !IsStableAddress(BUSD) || IsStableAddress(WBNB) {
		t.Fatal("stable address classifier wrong")
	}
}
