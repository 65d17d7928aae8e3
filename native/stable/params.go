package stable

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Config controls the mint/redeem engines and price guardrails. Amount fields
// accept decimal strings with optional scientific notation ("50000e18").
type Config struct {
	ReserveDecimals          uint8  `toml:"ReserveDecimals"`
	FeeBps                   uint64 `toml:"FeeBps"`
	MinMintWei               string `toml:"MinMintWei"`
	MaxMintWei               string `toml:"MaxMintWei"`
	MinRedeemWei             string `toml:"MinRedeemWei"`
	MaxRedeemWei             string `toml:"MaxRedeemWei"`
	MaxQuoteAgeSeconds       int64  `toml:"MaxQuoteAgeSeconds"`
	MaxConfidenceBps         uint64 `toml:"MaxConfidenceBps"`
	DeviationBoundBps        uint64 `toml:"DeviationBoundBps"`
	DeviationFloorBps        uint64 `toml:"DeviationFloorBps"`
	DeviationCeilingBps      uint64 `toml:"DeviationCeilingBps"`
	DeviationCooldownSeconds int64  `toml:"DeviationCooldownSeconds"`
	BackstopShareBps         uint64 `toml:"BackstopShareBps"`
	BondFloorStable          string `toml:"BondFloorStable"`
	TwapPeriodSeconds        int64  `toml:"TwapPeriodSeconds"`
	TwapWindowSeconds        int64  `toml:"TwapWindowSeconds"`
}

// Normalise applies defaults to unset values.
func (c Config) Normalise() Config {
	cfg := c
	if cfg.ReserveDecimals == 0 {
		cfg.ReserveDecimals = 8
	}
	if cfg.MaxQuoteAgeSeconds <= 0 {
		cfg.MaxQuoteAgeSeconds = 120
	}
	if cfg.DeviationBoundBps == 0 {
		cfg.DeviationBoundBps = 500
	}
	if cfg.DeviationFloorBps == 0 {
		cfg.DeviationFloorBps = 50
	}
	if cfg.DeviationCeilingBps == 0 {
		cfg.DeviationCeilingBps = 1000
	}
	if cfg.DeviationCooldownSeconds <= 0 {
		cfg.DeviationCooldownSeconds = 86_400
	}
	if cfg.TwapPeriodSeconds <= 0 {
		cfg.TwapPeriodSeconds = 1800
	}
	if cfg.TwapWindowSeconds < cfg.TwapPeriodSeconds {
		cfg.TwapWindowSeconds = cfg.TwapPeriodSeconds * 2
	}
	if strings.TrimSpace(cfg.MinMintWei) == "" {
		cfg.MinMintWei = "1000" // 0.00001 of an 8-decimal reserve asset
	}
	if strings.TrimSpace(cfg.MaxMintWei) == "" {
		cfg.MaxMintWei = "1000e8"
	}
	if strings.TrimSpace(cfg.MinRedeemWei) == "" {
		cfg.MinRedeemWei = "1e15"
	}
	if strings.TrimSpace(cfg.MaxRedeemWei) == "" {
		cfg.MaxRedeemWei = "10000000e18"
	}
	if strings.TrimSpace(cfg.BondFloorStable) == "" {
		cfg.BondFloorStable = "0"
	}
	return cfg
}

// MaxQuoteAge returns the quote freshness window as a duration.
func (c Config) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeSeconds) * time.Second
}

// Parameters holds the runtime representation of the configuration with
// textual amounts parsed into big integers.
type Parameters struct {
	ReserveDecimals   uint8
	FeeBps            uint64
	MinMintWei        *big.Int
	MaxMintWei        *big.Int
	MinRedeemWei      *big.Int
	MaxRedeemWei      *big.Int
	MaxQuoteAge       time.Duration
	MaxConfidenceBps  uint64
	BackstopShareBps  uint64
	BondFloorStable   *big.Int
	TwapPeriod        time.Duration
	TwapWindow        time.Duration
	DeviationBound    uint64
	DeviationFloor    uint64
	DeviationCeiling  uint64
	DeviationCooldown time.Duration
}

// Parameters converts the textual configuration into runtime values.
func (c Config) Parameters() (Parameters, error) {
	cfg := c.Normalise()
	if cfg.FeeBps > 10_000 {
		return Parameters{}, fmt.Errorf("stable: fee must not exceed 10000 bps")
	}
	if cfg.BackstopShareBps > 10_000 {
		return Parameters{}, fmt.Errorf("stable: backstop share must not exceed 10000 bps")
	}
	params := Parameters{
		ReserveDecimals:   cfg.ReserveDecimals,
		FeeBps:            cfg.FeeBps,
		MaxQuoteAge:       cfg.MaxQuoteAge(),
		MaxConfidenceBps:  cfg.MaxConfidenceBps,
		BackstopShareBps:  cfg.BackstopShareBps,
		TwapPeriod:        time.Duration(cfg.TwapPeriodSeconds) * time.Second,
		TwapWindow:        time.Duration(cfg.TwapWindowSeconds) * time.Second,
		DeviationBound:    cfg.DeviationBoundBps,
		DeviationFloor:    cfg.DeviationFloorBps,
		DeviationCeiling:  cfg.DeviationCeilingBps,
		DeviationCooldown: time.Duration(cfg.DeviationCooldownSeconds) * time.Second,
	}
	var err error
	if params.MinMintWei, err = parseWeiAmount(cfg.MinMintWei); err != nil {
		return Parameters{}, fmt.Errorf("stable: invalid MinMintWei: %w", err)
	}
	if params.MaxMintWei, err = parseWeiAmount(cfg.MaxMintWei); err != nil {
		return Parameters{}, fmt.Errorf("stable: invalid MaxMintWei: %w", err)
	}
	if params.MinRedeemWei, err = parseWeiAmount(cfg.MinRedeemWei); err != nil {
		return Parameters{}, fmt.Errorf("stable: invalid MinRedeemWei: %w", err)
	}
	if params.MaxRedeemWei, err = parseWeiAmount(cfg.MaxRedeemWei); err != nil {
		return Parameters{}, fmt.Errorf("stable: invalid MaxRedeemWei: %w", err)
	}
	if params.BondFloorStable, err = parseWeiAmount(cfg.BondFloorStable); err != nil {
		return Parameters{}, fmt.Errorf("stable: invalid BondFloorStable: %w", err)
	}
	if params.MinMintWei.Sign() > 0 && params.MaxMintWei.Sign() > 0 && params.MinMintWei.Cmp(params.MaxMintWei) > 0 {
		return Parameters{}, fmt.Errorf("stable: MinMintWei exceeds MaxMintWei")
	}
	if params.MinRedeemWei.Sign() > 0 && params.MaxRedeemWei.Sign() > 0 && params.MinRedeemWei.Cmp(params.MaxRedeemWei) > 0 {
		return Parameters{}, fmt.Errorf("stable: MinRedeemWei exceeds MaxRedeemWei")
	}
	return params, nil
}

// DeviationPolicy constructs the policy guarding the AMM cross-check.
func (p Parameters) DeviationPolicy() (*DeviationPolicy, error) {
	return NewDeviationPolicy(p.DeviationBound, p.DeviationFloor, p.DeviationCeiling, p.DeviationCooldown)
}

// Clone returns a deep copy of the parameters.
func (p Parameters) Clone() Parameters {
	clone := p
	for dst, src := range map[**big.Int]*big.Int{
		&clone.MinMintWei:      p.MinMintWei,
		&clone.MaxMintWei:      p.MaxMintWei,
		&clone.MinRedeemWei:    p.MinRedeemWei,
		&clone.MaxRedeemWei:    p.MaxRedeemWei,
		&clone.BondFloorStable: p.BondFloorStable,
	} {
		if src != nil {
			*dst = new(big.Int).Set(src)
		}
	}
	return clone
}

func parseWeiAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	normalized := trimmed
	var exponent int64
	if idx := strings.IndexAny(normalized, "eE"); idx != -1 {
		expPart := strings.TrimSpace(normalized[idx+1:])
		if expPart == "" {
			return nil, fmt.Errorf("invalid scientific notation")
		}
		expValue, err := strconv.ParseInt(expPart, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid scientific notation")
		}
		exponent = expValue
		normalized = strings.TrimSpace(normalized[:idx])
	}
	normalized = strings.TrimPrefix(normalized, "+")
	if strings.HasPrefix(normalized, "-") {
		return nil, fmt.Errorf("amount must not be negative")
	}
	parts := strings.Split(normalized, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount format")
	}
	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}
	digits := integerPart + fractionalPart
	if digits == "" {
		return big.NewInt(0), nil
	}
	if !isDigits(digits) {
		return nil, fmt.Errorf("invalid amount format")
	}
	fracLen := len(fractionalPart)
	for fracLen > 0 && len(digits) > 0 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		fracLen--
	}
	digits = strings.TrimLeft(digits, "0")
	totalExponent := exponent - int64(fracLen)
	if totalExponent < 0 {
		return nil, fmt.Errorf("amount must be an integer")
	}
	if digits == "" {
		digits = "0"
	}
	if totalExponent > 0 {
		digits += strings.Repeat("0", int(totalExponent))
	}
	amount := new(big.Int)
	if _, ok := amount.SetString(digits, 10); !ok {
		return nil, fmt.Errorf("invalid amount value")
	}
	return amount, nil
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
