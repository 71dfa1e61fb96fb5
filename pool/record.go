package pool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Record is the persisted layout of a Pool: integers as base-10 strings, hashes and
// addresses as hex. It is independent of how any uint256 version chooses to encode JSON.
type Record struct {
	ID          string `json:"id" yaml:"id"`
	AssetX      string `json:"assetX" yaml:"assetX"`
	AssetY      string `json:"assetY" yaml:"assetY"`
	ReserveX    string `json:"reserveX" yaml:"reserveX"`
	ReserveY    string `json:"reserveY" yaml:"reserveY"`
	TotalShares string `json:"totalShares" yaml:"totalShares"`
	FeeBps      uint16 `json:"feeBps" yaml:"feeBps"`
}

// Record converts p into its persisted form.
func (p Pool) Record() Record {
	return Record{
		ID:          p.ID.Hex(),
		AssetX:      p.AssetX.Hex(),
		AssetY:      p.AssetY.Hex(),
		ReserveX:    p.ReserveX.Dec(),
		ReserveY:    p.ReserveY.Dec(),
		TotalShares: p.TotalShares.Dec(),
		FeeBps:      p.FeeBps,
	}
}

// FromRecord parses a Record and validates the resulting pool.
func FromRecord(r Record) (Pool, error) {
	if !common.IsHexAddress(r.AssetX) || !common.IsHexAddress(r.AssetY) {
		return Pool{}, fmt.Errorf("record %s: invalid asset address", r.ID)
	}

	var p Pool
	p.ID = common.HexToHash(r.ID)
	p.AssetX = common.HexToAddress(r.AssetX)
	p.AssetY = common.HexToAddress(r.AssetY)
	p.FeeBps = r.FeeBps

	var err error
	if p.ReserveX, err = uint256.FromDecimal(r.ReserveX); err != nil {
		return Pool{}, fmt.Errorf("record %s: reserveX: %w", r.ID, err)
	}
	if p.ReserveY, err = uint256.FromDecimal(r.ReserveY); err != nil {
		return Pool{}, fmt.Errorf("record %s: reserveY: %w", r.ID, err)
	}
	if p.TotalShares, err = uint256.FromDecimal(r.TotalShares); err != nil {
		return Pool{}, fmt.Errorf("record %s: totalShares: %w", r.ID, err)
	}

	if err := p.Validate(); err != nil {
		return Pool{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return p, nil
}
