package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Extractor ExtractorConfig
	Mining    MiningConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type ExtractorConfig struct {
	URL   string // defaults to http://localhost:8000
	Model string // defaults to resnet50-reid
	Dim   int    // defaults to 2048
}

// MiningConfig holds the triplet mining hyperparameters. Defaults come from
// the embedded defaults.yaml; environment variables override them.
type MiningConfig struct {
	Margin    float64 `yaml:"margin"`
	Soft      bool    `yaml:"soft"`
	Persons   int     `yaml:"persons"`    // P: identities per batch
	PerPerson int     `yaml:"per_person"` // K: samples per identity
	Normalize bool    `yaml:"normalize"`
}

type defaultsFile struct {
	Mining MiningConfig `yaml:"mining"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean flag.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	mining := defaults.Mining
	mining.Margin = envFloat("MINING_MARGIN", mining.Margin)
	mining.Soft = envBool("MINING_SOFT", mining.Soft)
	mining.Persons = envInt("MINING_PERSONS", mining.Persons)
	mining.PerPerson = envInt("MINING_PER_PERSON", mining.PerPerson)
	mining.Normalize = envBool("MINING_NORMALIZE", mining.Normalize)

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Extractor: ExtractorConfig{
			URL:   os.Getenv("EXTRACTOR_URL"),
			Model: os.Getenv("EXTRACTOR_MODEL"),
			Dim:   envInt("EXTRACTOR_DIM", 2048),
		},
		Mining: mining,
	}
}
