package config

const (
	defaultOutputDir          = "~/.local/share/squish/output"
	defaultLogDir             = "~/.local/share/squish/logs"
	defaultStoreDir           = "~/.local/share/squish/store"
	defaultMinWorkers         = 1
	defaultMaxWorkers         = 8
	defaultInitTimeoutSeconds = 10
	defaultQuality            = 80
	defaultFormat             = "jpeg"
	defaultMaxProbes          = 6
	defaultMinFreeSpaceMiB    = 256
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StoreDir:  defaultStoreDir,
		},
		Pool: Pool{
			MinWorkers:         defaultMinWorkers,
			MaxWorkers:         defaultMaxWorkers,
			InitTimeoutSeconds: defaultInitTimeoutSeconds,
		},
		Compression: Compression{
			Quality:   defaultQuality,
			Format:    defaultFormat,
			MaxProbes: defaultMaxProbes,
		},
		Preflight: Preflight{
			MinFreeSpaceMiB: defaultMinFreeSpaceMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
