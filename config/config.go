// koanf_api
package config

import (
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

const Configfile string = "./config/config.toml"

type MainConfig struct {
	Importer ImporterConfig `koanf:"importer"`
}

type ImporterConfig struct {
	StagingDB    string `koanf:"stagingdb"`
	DataDB       string `koanf:"datadb"`
	SchemaDir    string `koanf:"schemadir"`
	BatchSize    int    `koanf:"batchsize"`
	MaxRetries   int    `koanf:"maxretries"`
	LineBuffer   int    `koanf:"linebuffer"`
	LogLevel     string `koanf:"loglevel"`
	LogFile      string `koanf:"logfile"`
	LogFileSize  int    `koanf:"logfilesize"`
	LogFileCount int    `koanf:"logfilecount"`
	LogCompress  bool   `koanf:"logcompress"`
}

// LoadCfg reads the importer section from the toml config file. Missing
// file or section falls back to defaults so the binary runs with flags only.
func LoadCfg(configfile string) (ImporterConfig, error) {
	cfg := Defaults()
	if configfile == "" {
		configfile = Configfile
	}
	var k = koanf.New(".")
	err := k.Load(file.Provider(configfile), toml.Parser())
	if err != nil {
		return cfg, errors.Wrap(err, "loading config")
	}
	var out MainConfig
	out.Importer = cfg
	if err := k.Unmarshal("", &out); err != nil {
		return cfg, errors.Wrap(err, "unmarshal config")
	}
	return applyDefaults(out.Importer), nil
}

func Defaults() ImporterConfig {
	return ImporterConfig{
		StagingDB:    "./databases/staging.db",
		DataDB:       "./databases/data.db",
		SchemaDir:    "./schema",
		BatchSize:    1000,
		MaxRetries:   3,
		LineBuffer:   1024,
		LogLevel:     "info",
		LogFile:      "importer.log",
		LogFileSize:  5,
		LogFileCount: 1,
	}
}

func applyDefaults(cfg ImporterConfig) ImporterConfig {
	def := Defaults()
	if cfg.StagingDB == "" {
		cfg.StagingDB = def.StagingDB
	}
	if cfg.DataDB == "" {
		cfg.DataDB = def.DataDB
	}
	if cfg.SchemaDir == "" {
		cfg.SchemaDir = def.SchemaDir
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.LineBuffer <= 0 {
		cfg.LineBuffer = def.LineBuffer
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogFile == "" {
		cfg.LogFile = def.LogFile
	}
	if cfg.LogFileSize <= 0 {
		cfg.LogFileSize = def.LogFileSize
	}
	if cfg.LogFileCount <= 0 {
		cfg.LogFileCount = def.LogFileCount
	}
	return cfg
}
