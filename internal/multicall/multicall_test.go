package multicall

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func packResponse(t *testing.T, raw []result3) []byte {
	t.Helper()
	parsed, err := multicall3ABIInstance()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	data, err := parsed.Methods["aggregate3"].Outputs.Pack(raw)
	if err != nil {
		t.Fatalf("pack response: %v", err)
	}
	return data
}

func TestDecodeAggregate3(t *testing.T) {
	raw := []result3{
		{Success: true, ReturnData: []byte{0x01, 0x02}},
		{Success: false, ReturnData: nil},
		{Success: true, ReturnData: bytes.Repeat([]byte{0xff}, 32)},
	}
	resp := packResponse(t, raw)

	parsed, err := multicall3ABIInstance()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	results, err := decodeAggregate3(parsed, resp, len(raw))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(results) != len(raw) {
		t.Fatalf("expected %d results, got %d", len(raw), len(results))
	}
	for i := range raw {
		if results[i].Success != raw[i].Success {
			t.Fatalf("result %d success mismatch", i)
		}
		if !bytes.Equal(results[i].ReturnData, raw[i].ReturnData) {
			t.Fatalf("result %d return data mismatch", i)
		}
	}
}

func TestDecodeAggregate3CountMismatch(t *testing.T) {
	resp := packResponse(t, []result3{{Success: true}})

	parsed, err := multicall3ABIInstance()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	if _, err := decodeAggregate3(parsed, resp, 2); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestPackAggregate3RoundTrip(t *testing.T) {
	parsed, err := multicall3ABIInstance()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}

	calls := []call3{
		{
			Target:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
			AllowFailure: true,
			CallData:     []byte{0xde, 0xad, 0xbe, 0xef},
		},
	}
	data, err := parsed.Pack("aggregate3", calls)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}

	// Selector plus encoded tuple array.
	if len(data) < 4 {
		t.Fatalf("packed data too short: %d bytes", len(data))
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil || method.Name != "aggregate3" {
		t.Fatalf("selector does not resolve to aggregate3: %v", err)
	}
}

func TestAggregateEmptyBatch(t *testing.T) {
	c := NewCaller(nil, common.Address{}, nil)
	results, err := c.Aggregate(nil, nil)
	if err != nil {
		t.Fatalf("empty batch failed: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for empty batch, got %v", results)
	}
}

func TestNewCallerDefaultsAddress(t *testing.T) {
	c := NewCaller(nil, common.Address{}, nil)
	if c.address != Multicall3Address {
		t.Fatalf("expected canonical multicall address, got %s", c.address.Hex())
	}
}
