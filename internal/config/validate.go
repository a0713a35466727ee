package config

import (
	"errors"
	"fmt"

	"squish/internal/codec"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePool() error {
	if c.Pool.Workers < 0 {
		return errors.New("pool.workers must be >= 0 (zero derives the count from host CPUs)")
	}
	if c.Pool.MinWorkers < 1 {
		return errors.New("pool.min_workers must be >= 1")
	}
	if c.Pool.MaxWorkers < c.Pool.MinWorkers {
		return errors.New("pool.max_workers must be >= pool.min_workers")
	}
	if c.Pool.Workers > 0 && c.Pool.Workers > c.Pool.MaxWorkers {
		return fmt.Errorf("pool.workers must be <= pool.max_workers (%d)", c.Pool.MaxWorkers)
	}
	if c.Pool.InitTimeoutSeconds <= 0 {
		return errors.New("pool.init_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateCompression() error {
	if c.Compression.Quality < 1 || c.Compression.Quality > 100 {
		return errors.New("compression.quality must be between 1 and 100")
	}
	if _, ok := codec.ParseFormat(c.Compression.Format); !ok {
		return fmt.Errorf("compression.format %q is not a known format", c.Compression.Format)
	}
	if c.Compression.MaxProbes < 1 {
		return errors.New("compression.max_probes must be >= 1")
	}
	if c.Compression.GIFColors < 0 || c.Compression.GIFColors > 256 {
		return errors.New("compression.gif_colors must be between 0 and 256")
	}
	return nil
}
