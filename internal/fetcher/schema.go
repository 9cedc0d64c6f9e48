package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/go-viper/mapstructure/v2"
)

// vaultFields is the subset of the vault object we depend on.
type vaultFields struct {
	ATokenTreasuryCap struct {
		TotalSupply struct {
			Value string `mapstructure:"value"`
		} `mapstructure:"total_supply"`
	} `mapstructure:"atoken_treasury_cap"`
}

// poolFields is the subset of the margin pool object we depend on.
type poolFields struct {
	State struct {
		TotalSupply  string `mapstructure:"total_supply"`
		SupplyShares string `mapstructure:"supply_shares"`
	} `mapstructure:"state"`
	Config struct {
		MarginPoolConfig struct {
			SupplyCap string `mapstructure:"supply_cap"`
		} `mapstructure:"margin_pool_config"`
	} `mapstructure:"config"`
}

type moveContent struct {
	DataType string          `json:"dataType"`
	Type     string          `json:"type"`
	Fields   json.RawMessage `json:"fields"`
}

// decodeContent unwraps a Move object's content and decodes its fields into out.
func decodeContent(raw json.RawMessage, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("%w: object has no content", ErrMalformed)
	}

	var content moveContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return fmt.Errorf("%w: decode content: %v", ErrMalformed, err)
	}
	if content.DataType != "" && content.DataType != "moveObject" {
		return fmt.Errorf("%w: unexpected data type %q", ErrMalformed, content.DataType)
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(content.Fields))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return fmt.Errorf("%w: content has no fields", ErrMalformed)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(unwrapMoveValue(fields)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// unwrapMoveValue collapses nested {"type": ..., "fields": {...}} struct
// wrappers so both the JSON-RPC and the flattened GraphQL shapes decode alike.
func unwrapMoveValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if inner, ok := t["fields"].(map[string]any); ok {
			if _, typed := t["type"]; typed {
				return unwrapMoveValue(inner)
			}
		}
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = unwrapMoveValue(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = unwrapMoveValue(x)
		}
		return out
	default:
		return v
	}
}

// parseAmount parses an on-chain unsigned integer field.
func parseAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: field %s missing", ErrMalformed, field)
	}
	// ParseBig256 also takes 0x hex, but u64 fields are encoded as decimal strings.
	if !isDecimalDigits(raw) {
		return nil, fmt.Errorf("%w: field %s=%q is not an unsigned integer", ErrMalformed, field, raw)
	}
	v, ok := math.ParseBig256(raw)
	if !ok {
		return nil, fmt.Errorf("%w: field %s=%q is not an unsigned integer", ErrMalformed, field, raw)
	}
	return v, nil
}

func isDecimalDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
