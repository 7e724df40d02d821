package coinset

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"sort"
	"strings"
)

type Coin struct {
	ParentCoinInfo string `json:"parent_coin_info"`
	PuzzleHash     string `json:"puzzle_hash"`
	Amount         uint64 `json:"amount"`
}

type CoinRecord struct {
	Coin                Coin  `json:"coin"`
	Coinbase            bool  `json:"coinbase"`
	ConfirmedBlockIndex int64 `json:"confirmed_block_index"`
	Spent               bool  `json:"spent"`
	SpentBlockIndex     int64 `json:"spent_block_index"`
	Timestamp           int64 `json:"timestamp"`
}

// ID is sha256(parent || puzzle_hash || amount) with the amount in minimal
// two's-complement big-endian form.
func (c Coin) ID() string {
	parent, err1 := hex.DecodeString(strip0x(c.ParentCoinInfo))
	ph, err2 := hex.DecodeString(strip0x(c.PuzzleHash))
	if err1 != nil || err2 != nil {
		return ""
	}
	h := sha256.New()
	h.Write(parent)
	h.Write(ph)
	h.Write(amountBytes(c.Amount))
	return hex.EncodeToString(h.Sum(nil))
}

func amountBytes(amount uint64) []byte {
	if amount == 0 {
		return nil
	}
	b := new(big.Int).SetUint64(amount).Bytes()
	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	return b
}

func strip0x(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
}

var txIDKeys = map[string]struct{}{
	"tx_id": {}, "txId": {},
	"take_tx_id": {}, "takeTxId": {},
	"settlement_tx_id": {}, "settlementTxId": {},
	"coinset_tx_id": {}, "coinsetTxId": {},
	"block_tx_id": {}, "blockTxId": {},
	"mempool_tx_ids": {}, "mempoolTxIds": {},
	"confirmed_tx_ids": {}, "confirmedTxIds": {},
}

// LooksLikeTxID accepts 64 hex characters, case-insensitive.
func LooksLikeTxID(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if len(v) != 64 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}

// ExtractTxIDs walks a decoded JSON payload and collects tx ids found under the
// known keys at any depth, lowercased, in first-seen order.
func ExtractTxIDs(payload any) []string {
	var out []string
	seen := map[string]struct{}{}
	var add func(v any)
	add = func(v any) {
		switch t := v.(type) {
		case string:
			n := strings.ToLower(strings.TrimSpace(t))
			if !LooksLikeTxID(n) {
				return
			}
			if _, ok := seen[n]; ok {
				return
			}
			seen[n] = struct{}{}
			out = append(out, n)
		case []any:
			for _, item := range t {
				add(item)
			}
		}
	}
	var walk func(node any)
	walk = func(node any) {
		switch t := node.(type) {
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				v := t[k]
				if _, ok := txIDKeys[k]; ok {
					add(v)
				}
				switch v.(type) {
				case map[string]any, []any:
					walk(v)
				}
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(payload)
	return out
}
