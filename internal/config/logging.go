package config

// LoggingConfig holds spec §6's log.level / log.file_path settings.
type LoggingConfig struct {
	Level    string `env:"JOBCORE_LOG_LEVEL"`
	FilePath string `env:"JOBCORE_LOG_FILE_PATH"`
}
