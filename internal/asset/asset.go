package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrUnknownAsset is returned for symbols outside the built-in table.
var ErrUnknownAsset = errors.New("asset: unknown asset")

// Symbol identifies a tracked token.
type Symbol string

const (
	USDC Symbol = "USDC"
	SUI  Symbol = "SUI"
	WAL  Symbol = "WAL"
	DEEP Symbol = "DEEP"
)

// Asset binds a token to its on-chain vault and margin pool objects.
type Asset struct {
	Symbol   Symbol
	VaultID  string
	PoolID   string
	Decimals int32
}

var builtin = []Asset{
	{
		Symbol:   USDC,
		VaultID:  "0x86cd17116a5c1bc95c25296a901eb5ea91531cb8ba59d01f64ee2018a14d6fa5",
		PoolID:   "0xba473d9ae278f10af75c50a8fa341e9c6a1c087dc91a3f23e8048baf67d0754f",
		Decimals: 6,
	},
	{
		Symbol:   SUI,
		VaultID:  "0x670c12c8ea3981be65b8b11915c2ba1832b4ebde160b03cd7790021920a8ce68",
		PoolID:   "0x53041c6f86c4782aabbfc1d4fe234a6d37160310c7ee740c915f0a01b7127344",
		Decimals: 9,
	},
	{
		Symbol:   WAL,
		VaultID:  "0x09b367346a0fc3709e32495e8d522093746ddd294806beff7e841c9414281456",
		PoolID:   "0x38decd3dbb62bd4723144349bf57bc403b393aee86a51596846a824a1e0c2c01",
		Decimals: 9,
	},
	{
		Symbol:   DEEP,
		VaultID:  "0xec54bde40cf2261e0c5d9c545f51c67a9ae5a8add9969c7e4cdfe1d15d4ad92e",
		PoolID:   "0x1d723c5cd113296868b55208f2ab5a905184950dd59c48eb7345607d6b5e6af7",
		Decimals: 6,
	},
}

// All returns a copy of the built-in asset table.
func All() []Asset {
	out := make([]Asset, len(builtin))
	copy(out, builtin)
	return out
}

// Lookup resolves a symbol case-insensitively.
func Lookup(symbol string) (Asset, error) {
	want := Symbol(strings.ToUpper(strings.TrimSpace(symbol)))
	for _, a := range builtin {
		if a.Symbol == want {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: %q", ErrUnknownAsset, symbol)
}

// Select resolves a list of symbols, preserving order and dropping duplicates.
func Select(symbols []string) ([]Asset, error) {
	seen := make(map[Symbol]struct{}, len(symbols))
	out := make([]Asset, 0, len(symbols))
	for _, s := range symbols {
		a, err := Lookup(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[a.Symbol]; dup {
			continue
		}
		seen[a.Symbol] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// Validate checks that both object ids are 32-byte hex strings.
func (a Asset) Validate() error {
	if a.Symbol == "" {
		return errors.New("asset: empty symbol")
	}
	if a.Decimals < 0 || a.Decimals > 18 {
		return fmt.Errorf("asset %s: decimals %d out of range", a.Symbol, a.Decimals)
	}
	for _, id := range []string{a.VaultID, a.PoolID} {
		raw, err := hexutil.Decode(id)
		if err != nil {
			return fmt.Errorf("asset %s: object id %q: %w", a.Symbol, id, err)
		}
		if len(raw) != common.HashLength {
			return fmt.Errorf("asset %s: object id %q must be %d bytes", a.Symbol, id, common.HashLength)
		}
	}
	return nil
}

// NormalizeObjectID returns the canonical 0x-prefixed, zero-padded lowercase form.
func NormalizeObjectID(id string) string {
	return common.HexToHash(id).Hex()
}

func (s Symbol) String() string { return string(s) }
