package main

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/dreamware/tdbkit/internal/tdb"
)

// fileConfig is the shape of a tdbtool.toml tuning defaults file (§2.3):
// values here are converted directly into a tdb.Tuning, and the --tune
// token string (parsed by internal/tdb.ParseTuningTokens) is then merged
// over it.
type fileConfig struct {
	BucketNum    int64  `toml:"bucket_num"`
	AlignPow     int    `toml:"align_pow"`
	FreeBlockPow int    `toml:"free_block_pow"`
	Compression  string `toml:"compression"` // "", "deflate", "bzip", "tcbs", "excodec"
	Large        bool   `toml:"large"`
	ExtraMapSize int64  `toml:"extra_map_size"`
	DefragUnit   int64  `toml:"defrag_unit"`
}

// loadFileConfig reads path as BurntSushi/toml, returning a zero-value
// fileConfig (no tuning defaults) when path is empty.
func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// tuning converts the file config into a tdb.Tuning, the starting point
// command-line tuning flags are then layered on top of.
func (c fileConfig) tuning() tdb.Tuning {
	var flags tdb.TuningFlags
	if c.Large {
		flags |= tdb.TuningLarge
	}
	switch c.Compression {
	case "deflate":
		flags |= tdb.TuningDeflate
	case "bzip":
		flags |= tdb.TuningBzip
	case "tcbs":
		flags |= tdb.TuningTCBS
	case "excodec":
		flags |= tdb.TuningExcodec
	}
	return tdb.Tuning{
		BucketNum:    c.BucketNum,
		AlignPow:     c.AlignPow,
		FreeBlockPow: c.FreeBlockPow,
		Flags:        flags,
		ExtraMapSize: c.ExtraMapSize,
		DefragUnit:   c.DefragUnit,
	}
}

// mergeTuning overlays override onto base: any nonzero field in override
// wins, letting an explicit --tune flag take precedence over a config
// file's defaults without requiring every field to be repeated on the
// command line.
func mergeTuning(base, override tdb.Tuning) tdb.Tuning {
	out := base
	if override.BucketNum != 0 {
		out.BucketNum = override.BucketNum
	}
	if override.AlignPow != 0 {
		out.AlignPow = override.AlignPow
	}
	if override.FreeBlockPow != 0 {
		out.FreeBlockPow = override.FreeBlockPow
	}
	if override.Flags != 0 {
		out.Flags = override.Flags
	}
	if override.ExtraMapSize != 0 {
		out.ExtraMapSize = override.ExtraMapSize
	}
	if override.DefragUnit != 0 {
		out.DefragUnit = override.DefragUnit
	}
	return out
}

// resolveTuning loads the config file at flagConfig, then merges the
// --tune token string on top of it.
func resolveTuning(tuneTokens string) (tdb.Tuning, error) {
	cfg, err := loadFileConfig(flagConfig)
	if err != nil {
		return tdb.Tuning{}, err
	}
	override, err := tdb.ParseTuningTokens(tuneTokens)
	if err != nil {
		return tdb.Tuning{}, err
	}
	return mergeTuning(cfg.tuning(), override), nil
}
