package multicall

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/0xprotovox/bscradar/internal/chain"
)

// Multicall3Address is the canonical deployment, shared across EVM chains.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// maxCallsPerRequest bounds one aggregate3 request so responses stay under
// RPC size caps.
const maxCallsPerRequest = 500

const multicall3ABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "bool", "name": "allowFailure", "type": "bool"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Call3[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "aggregate3",
    "outputs": [
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct Multicall3.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "payable",
    "type": "function"
  }
]`

var (
	multicall3ABI     abi.ABI
	multicall3ABIOnce sync.Once
	multicall3ABIErr  error
)

func multicall3ABIInstance() (abi.ABI, error) {
	multicall3ABIOnce.Do(func() {
		multicall3ABI, multicall3ABIErr = abi.JSON(strings.NewReader(multicall3ABIJSON))
	})
	return multicall3ABI, multicall3ABIErr
}

// Call is one sub-call of a batch. AllowFailure should normally be true so a
// single reverting sub-call never aborts the batch.
type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is the positional outcome of one sub-call.
type Result struct {
	Success    bool
	ReturnData []byte
}

// call3 mirrors the aggregate3 tuple layout for ABI packing.
type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type result3 struct {
	Success    bool
	ReturnData []byte
}

// Caller dispatches aggregated read batches through the RPC gateway.
type Caller struct {
	gateway *chain.Gateway
	address common.Address
	logger  *zap.Logger
}

// NewCaller builds a batch caller over the gateway. A zero address selects
// the canonical Multicall3 deployment.
func NewCaller(gateway *chain.Gateway, address common.Address, logger *zap.Logger) *Caller {
	if (address == common.Address{}) {
		address = Multicall3Address
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{gateway: gateway, address: address, logger: logger}
}

// Aggregate executes all calls via aggregate3 and returns results in the
// submitted order, one per call. Batches larger than the per-request cap are
// split transparently.
func (c *Caller) Aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(calls))
	for start := 0; start < len(calls); start += maxCallsPerRequest {
		end := start + maxCallsPerRequest
		if end > len(calls) {
			end = len(calls)
		}
		chunk, err := c.aggregateChunk(ctx, calls[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return results, nil
}

func (c *Caller) aggregateChunk(ctx context.Context, calls []Call) ([]Result, error) {
	parsed, err := multicall3ABIInstance()
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}

	packed := make([]call3, len(calls))
	for i, call := range calls {
		packed[i] = call3{Target: call.Target, AllowFailure: call.AllowFailure, CallData: call.CallData}
	}

	data, err := parsed.Pack("aggregate3", packed)
	if err != nil {
		return nil, fmt.Errorf("pack aggregate3: %w", err)
	}

	var resp []byte
	op := func(ctx context.Context, client *ethclient.Client) error {
		msg := ethereum.CallMsg{To: &c.address, Data: data}
		out, err := client.CallContract(ctx, msg, nil)
		if err != nil {
			return err
		}
		resp = out
		return nil
	}
	if err := c.gateway.Execute(ctx, op); err != nil {
		return nil, fmt.Errorf("aggregate3 call: %w", err)
	}

	return decodeAggregate3(parsed, resp, len(calls))
}

func decodeAggregate3(parsed abi.ABI, resp []byte, want int) ([]Result, error) {
	values, err := parsed.Unpack("aggregate3", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("aggregate3 return size %d", len(values))
	}

	raw := *abi.ConvertType(values[0], new([]result3)).(*[]result3)
	if len(raw) != want {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(raw), want)
	}

	results := make([]Result, len(raw))
	for i, item := range raw {
		results[i] = Result{Success: item.Success, ReturnData: item.ReturnData}
	}
	return results, nil
}
