package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

// IsLoopback reports whether baseURL points at this machine. Remote
// endpoints want credentials; only a local source plausibly runs anonymous.
func IsLoopback(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// HTTPClient talks to a hypersync-style indexing service:
//
//	GET  /height -> {"height": N}
//	POST /query  -> {"data": {"transactions": [...]}, "next_block": N, "archive_height": N}
//
// Range bounds are inclusive on both ends.
type HTTPClient struct {
	base  string
	token string
	hc    *http.Client
}

type HTTPConfig struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPClient{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.BearerToken,
		hc:    &http.Client{Timeout: cfg.Timeout},
	}
}

type heightResp struct {
	Height int64 `json:"height"`
}

type queryReq struct {
	FromBlock      int64          `json:"from_block"`
	ToBlock        int64          `json:"to_block"`
	FieldSelection fieldSelection `json:"field_selection"`
}

type fieldSelection struct {
	Transaction []string `json:"transaction"`
}

// txFields is the fixed selection pushed to subscribers. Keep in sync with model.Tx.
var txFields = []string{
	"hash", "from", "to", "value", "gas", "gas_price",
	"block_number", "transaction_index",
}

type queryResp struct {
	Data struct {
		Transactions []model.Tx `json:"transactions"`
	} `json:"data"`
	NextBlock     int64 `json:"next_block"`
	ArchiveHeight int64 `json:"archive_height"`
}

func (c *HTTPClient) Height(ctx context.Context) (int64, error) {
	var out heightResp
	if err := c.do(ctx, http.MethodGet, "/height", nil, &out); err != nil {
		return 0, err
	}
	if out.Height < 0 {
		return 0, fmt.Errorf("%w: negative height %d", ErrMalformed, out.Height)
	}
	return out.Height, nil
}

func (c *HTTPClient) Range(ctx context.Context, from, to int64) (RangeResult, error) {
	req := queryReq{
		FromBlock:      from,
		ToBlock:        to,
		FieldSelection: fieldSelection{Transaction: txFields},
	}
	var out queryResp
	if err := c.do(ctx, http.MethodPost, "/query", req, &out); err != nil {
		return RangeResult{}, err
	}

	res := RangeResult{
		Txs:       out.Data.Transactions,
		NextBlock: out.NextBlock,
	}
	if out.NextBlock > 0 {
		res.HighestBlock = out.NextBlock - 1
	} else {
		// No continuation hint; fall back to the highest tx we can see.
		for _, tx := range out.Data.Transactions {
			if tx.BlockNumber > res.HighestBlock {
				res.HighestBlock = tx.BlockNumber
			}
		}
	}
	return res, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s %s status=%d", ErrUnavailable, method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrMalformed, method, path, err)
	}
	return nil
}
