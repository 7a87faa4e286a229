/*

This file contains the default engine parameters and the optional YAML
parameters file. Defaults are used when the database has no active
parameter set and no file is supplied; the file additionally declares the
vault set and the seed prices for the paper venue.

*/

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// DefaultEngineParameters provides a baseline parameter set, used if no
// active parameters are found in the database during initialization.
var DefaultEngineParameters = types.EngineParameters{
	// Weekly epochs. Estimation and execution both complete well inside
	// the window at any realistic vault count.
	EpochDuration: 7 * 24 * time.Hour,

	// Vaults processed per poll during the batched phases.
	MinibatchSize: 10,

	// Annualized volume fee on gross NAV, charged per epoch pro rata.
	VolumeFeeRate: sdkmath.LegacyMustNewDecFromStr("0.002"),

	// Protocol share of every curator fee.
	RevenueShareRate: sdkmath.LegacyMustNewDecFromStr("0.10"),

	// Buffer target as a fraction of aggregate NAV.
	BufferTargetRatio: sdkmath.LegacyMustNewDecFromStr("0.005"),

	// Max premium over the snapshot-priced estimate a buy may fill at.
	SlippageTolerance: sdkmath.LegacyMustNewDecFromStr("0.01"),
}

// ParamsFileContent is the parsed YAML parameters file.
type ParamsFileContent struct {
	Engine *EngineParamsYAML `yaml:"engine"`
	Vaults []VaultSpec       `yaml:"vaults"`
	Prices map[string]string `yaml:"prices"`
}

// EngineParamsYAML overrides the default engine parameters. Decimal fields
// are strings so the file round-trips without float precision loss.
type EngineParamsYAML struct {
	EpochDuration     string `yaml:"epoch_duration"`
	MinibatchSize     int    `yaml:"minibatch_size"`
	VolumeFeeRate     string `yaml:"volume_fee_rate"`
	RevenueShareRate  string `yaml:"revenue_share_rate"`
	BufferTargetRatio string `yaml:"buffer_target_ratio"`
	SlippageTolerance string `yaml:"slippage_tolerance"`
}

// VaultSpec declares one vault for the daemon to register at startup.
type VaultSpec struct {
	ID             string       `yaml:"id"`
	Curator        string       `yaml:"curator"`
	Encrypted      bool         `yaml:"encrypted"`
	DecimalsOffset uint8        `yaml:"decimals_offset"`
	Whitelist      []string     `yaml:"whitelist"`
	FeeModel       FeeModelYAML `yaml:"fee_model"`
}

// FeeModelYAML is the YAML form of a vault fee model.
type FeeModelYAML struct {
	Kind            string `yaml:"kind"`
	PerformanceRate string `yaml:"performance_rate"`
	ManagementRate  string `yaml:"management_rate"`
	HurdleRate      string `yaml:"hurdle_rate"`
	HighWaterMark   string `yaml:"high_water_mark"`
}

// LoadParamsFile reads and parses the YAML parameters file at path.
func LoadParamsFile(path string) (*ParamsFileContent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters file %s: %w", path, err)
	}
	var content ParamsFileContent
	if err := yaml.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("failed to parse parameters file %s: %w", path, err)
	}
	return &content, nil
}

// EngineParameters converts the YAML overrides into a validated parameter
// set, starting from the defaults for anything left unset.
func (c *ParamsFileContent) EngineParameters() (types.EngineParameters, error) {
	params := DefaultEngineParameters
	if c.Engine == nil {
		return params, nil
	}

	y := c.Engine
	if y.EpochDuration != "" {
		d, err := time.ParseDuration(y.EpochDuration)
		if err != nil {
			return types.EngineParameters{}, fmt.Errorf("invalid epoch_duration: %w", err)
		}
		params.EpochDuration = d
	}
	if y.MinibatchSize != 0 {
		params.MinibatchSize = y.MinibatchSize
	}
	for _, field := range []struct {
		raw  string
		dest *sdkmath.LegacyDec
		name string
	}{
		{y.VolumeFeeRate, &params.VolumeFeeRate, "volume_fee_rate"},
		{y.RevenueShareRate, &params.RevenueShareRate, "revenue_share_rate"},
		{y.BufferTargetRatio, &params.BufferTargetRatio, "buffer_target_ratio"},
		{y.SlippageTolerance, &params.SlippageTolerance, "slippage_tolerance"},
	} {
		if field.raw == "" {
			continue
		}
		value, err := sdkmath.LegacyNewDecFromStr(field.raw)
		if err != nil {
			return types.EngineParameters{}, fmt.Errorf("invalid %s: %w", field.name, err)
		}
		*field.dest = value
	}

	if err := params.Validate(); err != nil {
		return types.EngineParameters{}, err
	}
	return params, nil
}

// FeeModel converts the YAML fee model into its domain form.
func (y FeeModelYAML) FeeModel() (types.FeeModel, error) {
	kind, err := ParseFeeKind(y.Kind)
	if err != nil {
		return types.FeeModel{}, err
	}
	model := types.FeeModel{Kind: kind}

	for _, field := range []struct {
		raw  string
		dest *sdkmath.LegacyDec
		name string
	}{
		{y.PerformanceRate, &model.PerformanceRate, "performance_rate"},
		{y.ManagementRate, &model.ManagementRate, "management_rate"},
		{y.HurdleRate, &model.HurdleRate, "hurdle_rate"},
		{y.HighWaterMark, &model.HighWaterMark, "high_water_mark"},
	} {
		if field.raw == "" {
			continue
		}
		value, err := sdkmath.LegacyNewDecFromStr(field.raw)
		if err != nil {
			return types.FeeModel{}, fmt.Errorf("invalid %s: %w", field.name, err)
		}
		*field.dest = value
	}

	return model, nil
}

// ParseFeeKind maps a YAML fee kind name onto the domain enum.
func ParseFeeKind(name string) (types.FeeKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "absolute":
		return types.FeeAbsolute, nil
	case "soft_hurdle", "soft-hurdle":
		return types.FeeSoftHurdle, nil
	case "hard_hurdle", "hard-hurdle":
		return types.FeeHardHurdle, nil
	case "high_water_mark", "hwm":
		return types.FeeHighWaterMark, nil
	case "hurdle_hwm", "hurdle-hwm":
		return types.FeeHurdleHWM, nil
	default:
		return 0, fmt.Errorf("unknown fee kind: %q", name)
	}
}

// SeedPrices parses the price map into decimal form for the paper venue.
func (c *ParamsFileContent) SeedPrices() (map[types.AssetID]sdkmath.LegacyDec, error) {
	prices := make(map[types.AssetID]sdkmath.LegacyDec, len(c.Prices))
	for asset, raw := range c.Prices {
		value, err := sdkmath.LegacyNewDecFromStr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", asset, err)
		}
		prices[types.AssetID(asset)] = value
	}
	return prices, nil
}
