package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes a scripted pool session.
type Config struct {
	LogLevel    string `yaml:"logLevel"`
	FlashFeeBps uint16 `yaml:"flashFeeBps"`
	AllowSkim   bool   `yaml:"allowSkim"`

	AssetA Asset `yaml:"assetA"`
	AssetB Asset `yaml:"assetB"`

	// InitialLiquidity seeds the pool from the liquidity provider actor.
	InitialLiquidity struct {
		AmountA string `yaml:"amountA"`
		AmountB string `yaml:"amountB"`
	} `yaml:"initialLiquidity"`

	Steps []Step `yaml:"steps"`
}

// Asset names one side of the pair and how much the actors start with.
type Asset struct {
	Symbol      string `yaml:"symbol"`
	ActorSupply string `yaml:"actorSupply"`
}

// Step is one scripted operation against the pool.
type Step struct {
	Op string `yaml:"op"` // swap, mint, burn, flashloan, sync

	// swap
	TokenIn  string `yaml:"tokenIn"`
	AmountIn string `yaml:"amountIn"`
	MinOut   string `yaml:"minOut"`

	// mint
	AmountA string `yaml:"amountA"`
	AmountB string `yaml:"amountB"`

	// burn
	Shares string `yaml:"shares"`

	// flashloan
	Asset  string `yaml:"asset"`
	Amount string `yaml:"amount"`
}

// LoadConfig reads and validates a yaml session file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AssetA.Symbol == "" || cfg.AssetB.Symbol == "" {
		return nil, errors.New("config: both asset symbols are required")
	}
	if cfg.AssetA.Symbol == cfg.AssetB.Symbol {
		return nil, errors.New("config: asset symbols must differ")
	}
	if cfg.InitialLiquidity.AmountA == "" || cfg.InitialLiquidity.AmountB == "" {
		return nil, errors.New("config: initial liquidity amounts are required")
	}
	return &cfg, nil
}

// parseAmount converts a decimal string into a big.Int.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}
