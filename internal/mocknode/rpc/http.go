package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chenzhangda16/web3-txstream/internal/mocknode/model"
	"github.com/chenzhangda16/web3-txstream/internal/mocknode/store"
	core "github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

// BlockStore is the read side of the chain store the rpc serves from.
type BlockStore interface {
	Head() (int64, error)
	GetBlockRaw(n int64) ([]byte, error)
}

// Server exposes the mock chain over the same two endpoints the streaming
// service polls in production, so the pipeline can be run end to end with
// no external dependency.
type Server struct {
	st BlockStore
}

func NewServer(st BlockStore) *Server { return &Server{st: st} }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/height", s.handleHeight)
	mux.HandleFunc("/query", s.handleQuery)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusBadRequest)
}

// GET /height -> {"height": N}
func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request) {
	head, err := s.st.Head()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]int64{"height": head})
}

type queryRequest struct {
	FromBlock int64 `json:"from_block"`
	ToBlock   int64 `json:"to_block"`
}

// POST /query {"from_block": A, "to_block": B}, both bounds inclusive.
// Transactions come back in (block, transaction_index) order. next_block is
// the first block the caller has not seen yet; when the requested range is
// entirely past the head it equals from_block, signalling no progress.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad query body")
		return
	}
	// from_block 0 is valid: a consumer bootstrapping against a chain
	// shorter than its lookback starts there.
	if req.FromBlock < 0 || req.ToBlock < req.FromBlock {
		badRequest(w, "bad block range")
		return
	}

	const maxRange = int64(2000)
	if req.ToBlock-req.FromBlock+1 > maxRange {
		badRequest(w, "range too large")
		return
	}

	head, err := s.st.Head()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	usedTo := req.ToBlock
	if usedTo > head {
		usedTo = head
	}

	// Blocks are numbered from 1; a from_block of 0 scans from the start.
	scanFrom := req.FromBlock
	if scanFrom < 1 {
		scanFrom = 1
	}

	txs := []core.Tx{}
	nextBlock := req.FromBlock

	for n := scanFrom; n <= usedTo; n++ {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		raw, err := s.st.GetBlockRaw(n)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				break // hole in the chain, stop at what we have
			}
			http.Error(w, err.Error(), 500)
			return
		}
		blk, err := model.DecodeBlock(raw)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		txs = append(txs, blk.Txs...)
		nextBlock = n + 1
	}

	writeJSON(w, 200, map[string]any{
		"data":           map[string]any{"transactions": txs},
		"next_block":     nextBlock,
		"archive_height": head,
	})
}
