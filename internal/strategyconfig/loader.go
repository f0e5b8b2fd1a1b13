package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML strategy file and returns Config with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read strategy config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, data, nil
}

// DefaultConfig is the configuration used when no strategy file is given
func DefaultConfig(variant string) *Config {
	return &Config{
		Meta:     Meta{StrategyID: variant, Version: "adhoc"},
		Strategy: Strategy{Variant: variant},
		Params:   Defaults(),
		WalkForward: WalkForward{
			Mode:        "rolling",
			SplitRatio:  0.7,
			TrainMonths: 12,
			TestMonths:  3,
			StepMonths:  3,
		},
		Optimize: Optimize{Objective: "sharpe", TopN: 10},
	}
}

// Parse decodes YAML on top of the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := *DefaultConfig("")

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if cfg.Params.Strategy == nil {
		cfg.Params.Strategy = map[string]float64{}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: encoding/json은 map key를 정렬하므로 해시 재현성 보장
func Hash(cfg *Config) (string, error) {
	return hashJSON(cfg)
}

// HashParams hashes a single parameter set (optimizer combinations, API runs)
func HashParams(p Params) (string, error) {
	return hashJSON(p)
}

func hashJSON(v interface{}) (string, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewRunSnapshot creates a snapshot stored next to a run report
func NewRunSnapshot(cfg *Config, yamlData []byte) (*RunSnapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &RunSnapshot{
		ConfigHash: hash,
		ConfigYAML: string(yamlData),
		StrategyID: cfg.Meta.StrategyID,
		Variant:    cfg.Strategy.Variant,
		CreatedAt:  time.Now(),
	}, nil
}
