// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package usd

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/stable/roles"
)

// ConfigKey is the key used in json config files for the issuance system.
const ConfigKey = "stableConfig"

// AssetConfig declares one supported collateral asset.
type AssetConfig struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// Config is the json-facing deployment description of a full issuance
// system: admin, collateral set, fee schedule, ceilings and the active
// redemption discipline.
type Config struct {
	Admin  common.Address `json:"admin"`
	Assets []AssetConfig  `json:"assets,omitempty"`

	MintFeeBps   uint64         `json:"mintFeeBps,omitempty"`
	RedeemFeeBps uint64         `json:"redeemFeeBps,omitempty"`
	Treasury     common.Address `json:"treasury,omitempty"`
	MinMintFee   string         `json:"minMintFee,omitempty"`
	MinRedeemFee string         `json:"minRedeemFee,omitempty"`

	MaxMintPerBlock   string `json:"maxMintPerBlock,omitempty"`
	MaxRedeemPerBlock string `json:"maxRedeemPerBlock,omitempty"`
	MinMintAmount     string `json:"minMintAmount,omitempty"`
	MinRedeemAmount   string `json:"minRedeemAmount,omitempty"`

	// "cooldown" or "queue".
	Discipline       string `json:"discipline"`
	CooldownDuration uint64 `json:"cooldownDuration,omitempty"`
}

func (c *Config) Key() string {
	return ConfigKey
}

// parseAmount reads a decimal string into a non-negative big.Int. Empty means
// zero.
func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %q", field, s)
	}
	return v, nil
}

func (c *Config) disciplineValue() (RedeemDiscipline, error) {
	switch c.Discipline {
	case "cooldown":
		return DisciplineCooldown, nil
	case "queue":
		return DisciplineQueue, nil
	default:
		return 0, fmt.Errorf("invalid discipline: %q", c.Discipline)
	}
}

// Verify checks the config for internal consistency.
func (c *Config) Verify() error {
	if c.Admin == (common.Address{}) {
		return fmt.Errorf("admin must be set")
	}
	if c.MintFeeBps > MaxFeeBps || c.RedeemFeeBps > MaxFeeBps {
		return fmt.Errorf("fee bps above maximum %d", MaxFeeBps)
	}
	if c.CooldownDuration > MaxCooldownDuration {
		return fmt.Errorf("cooldown duration above maximum %d", uint64(MaxCooldownDuration))
	}
	if _, err := c.disciplineValue(); err != nil {
		return err
	}
	seen := make(map[common.Address]bool)
	for _, a := range c.Assets {
		if a.Address == (common.Address{}) {
			return fmt.Errorf("asset address must be set")
		}
		if a.Decimals == 0 || a.Decimals > StableDecimals {
			return fmt.Errorf("asset %s: decimals must be 1..%d", a.Address, StableDecimals)
		}
		if seen[a.Address] {
			return fmt.Errorf("asset %s listed twice", a.Address)
		}
		seen[a.Address] = true
	}
	for field, s := range map[string]string{
		"minMintFee":        c.MinMintFee,
		"minRedeemFee":      c.MinRedeemFee,
		"maxMintPerBlock":   c.MaxMintPerBlock,
		"maxRedeemPerBlock": c.MaxRedeemPerBlock,
		"minMintAmount":     c.MinMintAmount,
		"minRedeemAmount":   c.MinRedeemAmount,
	} {
		if _, err := parseAmount(field, s); err != nil {
			return err
		}
	}
	return nil
}

// System bundles the deployed components.
type System struct {
	Roles  *roles.Registry
	Token  *StableToken
	Ledger *CollateralLedger
	Engine *IssuanceEngine
}

// NewSystem builds a complete issuance system from a verified config. The
// admin receives every operational capability; production deployments revoke
// and re-grant to separate keys afterwards.
func NewSystem(cfg *Config, bank AssetBank, chain ChainContext) (*System, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	discipline, err := cfg.disciplineValue()
	if err != nil {
		return nil, err
	}

	reg, err := roles.NewRegistry(cfg.Admin)
	if err != nil {
		return nil, err
	}
	for _, role := range []roles.Role{
		roles.Minter, roles.Redeemer, roles.CollateralManager,
		roles.Gatekeeper, roles.Rewarder, roles.BlacklistManager,
		roles.RedemptionManager,
	} {
		if err := reg.Grant(cfg.Admin, role, cfg.Admin); err != nil {
			return nil, err
		}
	}

	token := NewStableToken(reg)
	ledger := NewCollateralLedger(reg, bank)
	engine := NewIssuanceEngine(reg, token, ledger, chain, discipline)

	for _, a := range cfg.Assets {
		if err := ledger.AddAsset(cfg.Admin, a.Address, a.Decimals); err != nil {
			return nil, err
		}
	}

	minMintFee, _ := parseAmount("minMintFee", cfg.MinMintFee)
	minRedeemFee, _ := parseAmount("minRedeemFee", cfg.MinRedeemFee)
	if err := engine.SetFeeConfig(cfg.Admin, FeeConfig{
		MintFeeBps:   cfg.MintFeeBps,
		RedeemFeeBps: cfg.RedeemFeeBps,
		Treasury:     cfg.Treasury,
		MinMintFee:   minMintFee,
		MinRedeemFee: minRedeemFee,
	}); err != nil {
		return nil, err
	}

	maxMint, _ := parseAmount("maxMintPerBlock", cfg.MaxMintPerBlock)
	maxRedeem, _ := parseAmount("maxRedeemPerBlock", cfg.MaxRedeemPerBlock)
	if err := engine.SetBlockLimits(cfg.Admin, maxMint, maxRedeem); err != nil {
		return nil, err
	}

	minMint, _ := parseAmount("minMintAmount", cfg.MinMintAmount)
	minRedeem, _ := parseAmount("minRedeemAmount", cfg.MinRedeemAmount)
	if err := engine.SetMinimumAmounts(cfg.Admin, minMint, minRedeem); err != nil {
		return nil, err
	}

	if discipline == DisciplineCooldown && cfg.CooldownDuration > 0 {
		if err := engine.SetCooldownDuration(cfg.Admin, cfg.CooldownDuration); err != nil {
			return nil, err
		}
	}
	return &System{Roles: reg, Token: token, Ledger: ledger, Engine: engine}, nil
}
