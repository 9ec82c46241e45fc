package chain

import (
	"context"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// endpoint is one chain RPC endpoint with failure accounting.
type endpoint struct {
	url       string
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	failureCount int
	lastFailure  time.Time
}

func dialEndpoint(ctx context.Context, rawURL string) (*endpoint, error) {
	rpcClient, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return &endpoint{
		url:       rawURL,
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

func (e *endpoint) close() {
	if e.rpcClient != nil {
		e.rpcClient.Close()
	}
}

// MaskURL hides the path (usually an API key) of an endpoint URL,
// preserving scheme and host for log readability.
func MaskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "***"
	}
	masked := parsed.Scheme + "://" + parsed.Host
	if parsed.Path != "" && parsed.Path != "/" {
		masked += "/***"
	}
	return masked
}
