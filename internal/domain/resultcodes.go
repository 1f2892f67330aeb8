package domain

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
)

// Result codes referenced by platform adapters when they synthesize a
// completion themselves.
const (
	ResultErrorGenericFailure = 1
	ResultErrorRadioOff       = 2
	ResultErrorNoService      = 4
	ResultInvalidArguments    = 11
	ResultNoMemory            = 13
	ResultInvalidSmsFormat    = 14
	ResultNetworkError        = 17
	ResultInvalidSmscAddress  = 19
	ResultOperationNotAllowed = 20
	ResultRequestNotSupported = 24
	ResultRilSimAbsent        = 120
)

//go:embed resultcodes.json
var resultCodesJSON []byte

// ResultCodeTable maps platform send result codes to symbolic codes and the
// symbolic codes to descriptions. It is read only after construction.
type ResultCodeTable struct {
	codes        map[int]string
	descriptions map[string]string
}

var defaultTable = mustLoadTable(resultCodesJSON)

// DefaultResultCodes returns the process wide table built from the embedded
// asset.
func DefaultResultCodes() *ResultCodeTable { return defaultTable }

// LoadResultCodes parses a table in the embedded asset's format.
func LoadResultCodes(data []byte) (*ResultCodeTable, error) {
	var raw struct {
		Codes        map[int]string    `json:"codes"`
		Descriptions map[string]string `json:"descriptions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode result codes: %w", err)
	}
	for n, sym := range raw.Codes {
		if _, ok := raw.Descriptions[sym]; !ok {
			return nil, fmt.Errorf("result code %d: no description for %s", n, sym)
		}
	}
	return &ResultCodeTable{codes: raw.Codes, descriptions: raw.Descriptions}, nil
}

func mustLoadTable(data []byte) *ResultCodeTable {
	t, err := LoadResultCodes(data)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the symbolic code and description for a numeric result code.
// Unrecognized codes map to UNKNOWN_ERROR with the raw code in the message.
func (t *ResultCodeTable) Lookup(resultCode int) (code, description string) {
	sym, ok := t.codes[resultCode]
	if !ok {
		return CodeUnknown, fmt.Sprintf("Unknown error occurred with result code: %d", resultCode)
	}
	return sym, t.descriptions[sym]
}

// Codes lists the known numeric codes in ascending order.
func (t *ResultCodeTable) Codes() []int {
	out := make([]int, 0, len(t.codes))
	for n := range t.codes {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
