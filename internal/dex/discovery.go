package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xprotovox/bscradar/internal/model"
	"github.com/0xprotovox/bscradar/internal/multicall"
)

// PancakeSwap factories on BSC.
var (
	V2FactoryAddress = common.HexToAddress("0xca143ce32fe78f1f7019d7d551a6402fc5350c73")
	V3FactoryAddress = common.HexToAddress("0x0bfbcf9fa4f9c56b0f40a671ad40e0805a091865")
)

// V3FeeTiers is the closed fee-tier set, in hundredths of a bip.
var V3FeeTiers = []uint32{100, 500, 2500, 3000, 10000}

// V2DefaultFeeBps is the fixed PancakeSwap pair fee (0.25%), same unit.
const V2DefaultFeeBps uint32 = 2500

// Protocol display names and status keys.
const (
	ProtocolV2 = "pancakeswap-v2"
	ProtocolV3 = "pancakeswap-v3"
)

// BatchCaller is the aggregated-read primitive discovery and fetching need.
type BatchCaller interface {
	Aggregate(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error)
}

// Candidate is a discovered pool address with its identity coordinates.
type Candidate struct {
	Address common.Address
	Kind    model.ProtocolKind
	Base    common.Address
	FeeBps  uint32
}

// Discovery enumerates candidate pools for a token across both factories
// and the base-token set in one batched call.
type Discovery struct {
	caller BatchCaller
	logger *zap.Logger
}

// NewDiscovery builds a discovery over the batch caller.
func NewDiscovery(caller BatchCaller, logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{caller: caller, logger: logger}
}

// Discover returns every deployed pool trading target against the base set.
// Fast mode restricts bases to the three deepest ones.
func (d *Discovery) Discover(ctx context.Context, target common.Address, fast bool) ([]Candidate, error) {
	v2Factory, err := V2FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse v2 factory abi: %w", err)
	}
	v3Factory, err := V3FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse v3 factory abi: %w", err)
	}

	bases := model.BaseTokens()
	if fast {
		bases = model.FastBaseTokens()
	}

	type slot struct {
		kind model.ProtocolKind
		base common.Address
		fee  uint32
	}
	var calls []multicall.Call
	var slots []slot

	for _, base := range bases {
		if base == target {
			continue
		}
		calls = append(calls, multicall.Call{
			Target:       V2FactoryAddress,
			AllowFailure: true,
			CallData:     MustPack(v2Factory, "getPair", target, base),
		})
		slots = append(slots, slot{kind: model.KindV2, base: base})

		for _, fee := range V3FeeTiers {
			calls = append(calls, multicall.Call{
				Target:       V3FactoryAddress,
				AllowFailure: true,
				CallData:     MustPack(v3Factory, "getPool", target, base, new(big.Int).SetUint64(uint64(fee))),
			})
			slots = append(slots, slot{kind: model.KindV3, base: base, fee: fee})
		}
	}

	results, err := d.caller.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("discovery batch: %w", err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("discovery returned %d of %d results", len(results), len(calls))
	}

	seen := make(map[string]bool, len(results))
	candidates := make([]Candidate, 0, len(results))
	for i, res := range results {
		addr, ok := decodeFactoryAddress(res)
		if !ok {
			continue
		}
		key := string(slots[i].kind) + "_" + strings.ToLower(addr.Hex())
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, Candidate{
			Address: addr,
			Kind:    slots[i].kind,
			Base:    slots[i].base,
			FeeBps:  slots[i].fee,
		})
	}

	d.logger.Debug("discovery complete",
		zap.String("token", target.Hex()),
		zap.Int("queried", len(calls)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

func decodeFactoryAddress(res multicall.Result) (common.Address, bool) {
	if !res.Success || len(res.ReturnData) < 32 {
		return common.Address{}, false
	}
	addr := common.BytesToAddress(res.ReturnData[12:32])
	if (addr == common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}
