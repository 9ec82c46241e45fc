package token

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xprotovox/bscradar/internal/cache"
	"github.com/0xprotovox/bscradar/internal/dex"
	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/multicall"
)

// BatchCaller is the aggregated-read primitive the registry needs.
type BatchCaller interface {
	Aggregate(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error)
}

// Registry resolves token addresses to metadata. Resolution order: hardcoded
// table, cache, one batched chain read for everything still missing.
type Registry struct {
	caller BatchCaller
	cache  *cache.Cache
	logger *zap.Logger
}

// NewRegistry builds a registry over the batch caller and cache.
func NewRegistry(caller BatchCaller, c *cache.Cache, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{caller: caller, cache: c, logger: logger}
}

// Get resolves one token. Unresolvable fields fall back to UNKNOWN defaults.
func (r *Registry) Get(ctx context.Context, addr common.Address) (model.TokenInfo, error) {
	many, err := r.GetMany(ctx, []common.Address{addr})
	if err != nil {
		return model.UnknownToken(addr.Hex()), err
	}
	return many[addr], nil
}

// GetMany resolves a set of tokens, batching the uncached tail into a single
// aggregated read of {name, symbol, decimals}.
func (r *Registry) GetMany(ctx context.Context, addrs []common.Address) (map[common.Address]model.TokenInfo, error) {
	out := make(map[common.Address]model.TokenInfo, len(addrs))
	missing := make([]common.Address, 0, len(addrs))

	for _, addr := range addrs {
		if _, done := out[addr]; done {
			continue
		}
		if info, ok := Known(addr.Hex()); ok {
			out[addr] = info
			continue
		}
		if cached, ok := r.cache.Get(cache.TokenStore, strings.ToLower(addr.Hex())); ok {
			if info, ok := cached.(model.TokenInfo); ok {
				out[addr] = info
				continue
			}
		}
		missing = append(missing, addr)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := r.fetchBatch(ctx, missing)
	if err != nil {
		for _, addr := range missing {
			out[addr] = model.UnknownToken(addr.Hex())
		}
		return out, err
	}

	for addr, info := range fetched {
		out[addr] = info
		if err := r.cache.Set(cache.TokenStore, strings.ToLower(addr.Hex()), info); err != nil {
			r.logger.Warn("token cache write failed", zap.String("token", addr.Hex()), zap.Error(err))
		}
	}
	return out, nil
}

func (r *Registry) fetchBatch(ctx context.Context, addrs []common.Address) (map[common.Address]model.TokenInfo, error) {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	// Three sub-calls per token: name, symbol, decimals.
	calls := make([]multicall.Call, 0, len(addrs)*3)
	for _, addr := range addrs {
		calls = append(calls,
			multicall.Call{Target: addr, AllowFailure: true, CallData: dex.MustPack(erc20, "name")},
			multicall.Call{Target: addr, AllowFailure: true, CallData: dex.MustPack(erc20, "symbol")},
			multicall.Call{Target: addr, AllowFailure: true, CallData: dex.MustPack(erc20, "decimals")},
		)
	}

	results, err := r.caller.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("token metadata batch: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("token metadata batch returned %d of %d results", len(results), len(calls))
	}

	out := make(map[common.Address]model.TokenInfo, len(addrs))
	for i, addr := range addrs {
		info := model.UnknownToken(addr.Hex())
		if name, ok := decodeString(erc20, "name", results[i*3]); ok {
			info.Name = name
		}
		if symbol, ok := decodeString(erc20, "symbol", results[i*3+1]); ok {
			info.Symbol = symbol
		}
		if decimals, ok := decodeDecimals(erc20, results[i*3+2]); ok && decimals <= 36 {
			info.Decimals = decimals
		}
		out[addr] = info
	}
	return out, nil
}

// decodeString unpacks a string return, falling back to the bytes32 layout
// used by a few legacy tokens.
func decodeString(parsed abi.ABI, method string, res multicall.Result) (string, bool) {
	if !res.Success || len(res.ReturnData) == 0 {
		return "", false
	}
	if values, err := parsed.Unpack(method, res.ReturnData); err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok && s != "" {
			return s, true
		}
	}
	if b32, err := dex.ERC20Bytes32ABI(); err == nil {
		if values, err := b32.Unpack(method, res.ReturnData); err == nil && len(values) == 1 {
			if s, ok := dex.Bytes32ToString(values[0]); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func decodeDecimals(parsed abi.ABI, res multicall.Result) (uint8, bool) {
	if !res.Success || len(res.ReturnData) == 0 {
		return 0, false
	}
	values, err := parsed.Unpack("decimals", res.ReturnData)
	if err != nil || len(values) != 1 {
		return 0, false
	}
	d, err := dex.AsUint8(values[0])
	if err != nil {
		return 0, false
	}
	return d, true
}
