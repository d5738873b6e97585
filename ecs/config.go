package ecs

import (
	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// Config collects every tunable threshold named in the storage core. Zero
// values are invalid; use DefaultConfig for the documented defaults, or
// env.Parse the struct tags to let a deployment override them.
type Config struct {
	// HiComponentID is the boundary below which entity ids are treated as
	// component ids, eligible for dense lo_edges arrays and dense columns.
	HiComponentID uint64 `env:"FLECS_HI_COMPONENT_ID" envDefault:"256"`
	// HiEntityID is the boundary below which the entity index uses its
	// dense "lo" substructure; ids at or above it live in the "hi" map.
	HiEntityID uint64 `env:"FLECS_HI_ENTITY_ID" envDefault:"100000"`
	// MaxEntitiesInType bounds the number of distinct component ids a
	// single type may hold.
	MaxEntitiesInType int `env:"FLECS_MAX_ENTITIES_IN_TYPE" envDefault:"256"`
	// MaxChildNodes bounds the dense-child window of a type trie node
	// before new children spill into the bucketed sparse map.
	MaxChildNodes uint64 `env:"FLECS_MAX_CHILD_NODES" envDefault:"256"`
	// BucketCount is the number of buckets backing a trie node's sparse
	// children map.
	BucketCount uint64 `env:"FLECS_BUCKET_COUNT" envDefault:"256"`
	// MaxJobsPerWorker bounds the per-worker job queue used during
	// parallel iteration.
	MaxJobsPerWorker int `env:"FLECS_MAX_JOBS_PER_WORKER" envDefault:"16"`
	// MinHandle and MaxHandle bound the ids handed out for regular
	// entities. Ids outside the range are rejected as invalid, except
	// component ids below HiComponentID.
	MinHandle uint64 `env:"FLECS_MIN_HANDLE" envDefault:"256"`
	MaxHandle uint64 `env:"FLECS_MAX_HANDLE" envDefault:"18446744073709551615"`
	// Workers is the number of worker stages created for parallel
	// iteration. Zero means one per logical CPU.
	Workers int `env:"FLECS_WORKERS" envDefault:"0"`
}

// DefaultConfig returns the documented default thresholds. Most callers
// should use this rather than hand-assembling a Config.
func DefaultConfig() Config {
	return Config{
		HiComponentID:     256,
		HiEntityID:        100000,
		MaxEntitiesInType: 256,
		MaxChildNodes:     256,
		BucketCount:       256,
		MaxJobsPerWorker:  16,
		MinHandle:         256,
		MaxHandle:         ^uint64(0),
		Workers:           0,
	}
}

// LoadConfig reads the thresholds from the environment, falling back to
// the documented defaults for anything unset.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "failed to parse config from environment")
	}
	return cfg, nil
}
