package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePool()
	c.normalizeCompression()
	c.normalizePreflight()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StoreDir) == "" {
		c.Paths.StoreDir = defaultStoreDir
	}
	if c.Paths.StoreDir, err = expandPath(c.Paths.StoreDir); err != nil {
		return fmt.Errorf("paths.store_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePool() {
	if c.Pool.MinWorkers <= 0 {
		c.Pool.MinWorkers = defaultMinWorkers
	}
	if c.Pool.MaxWorkers <= 0 {
		c.Pool.MaxWorkers = defaultMaxWorkers
	}
	if c.Pool.MaxWorkers < c.Pool.MinWorkers {
		c.Pool.MaxWorkers = c.Pool.MinWorkers
	}
	if c.Pool.InitTimeoutSeconds <= 0 {
		c.Pool.InitTimeoutSeconds = defaultInitTimeoutSeconds
	}
}

func (c *Config) normalizeCompression() {
	if c.Compression.Quality <= 0 {
		c.Compression.Quality = defaultQuality
	}
	c.Compression.Format = strings.ToLower(strings.TrimSpace(c.Compression.Format))
	if c.Compression.Format == "" {
		c.Compression.Format = defaultFormat
	}
	if c.Compression.MaxProbes <= 0 {
		c.Compression.MaxProbes = defaultMaxProbes
	}
	if c.Compression.GIFColors < 0 {
		c.Compression.GIFColors = 0
	}
}

func (c *Config) normalizePreflight() {
	if c.Preflight.MinFreeSpaceMiB <= 0 {
		c.Preflight.MinFreeSpaceMiB = defaultMinFreeSpaceMiB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
