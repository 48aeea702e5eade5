package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:   "info",
			LogConsole: true,
		},
		CLI: CLIConfig{
			Program:        "atproto",
			TimeoutSeconds: 60,
			MaxOutputBytes: 64 * 1024,
		},
		Batch: BatchConfig{
			RatePerMinute: 0,
			Burst:         1,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8765,
		},
		Audit: AuditConfig{
			Enabled:       false,
			DBPath:        "~/.atproto-mcp/audit.db",
			RetentionDays: 30,
		},
		Schedules: []ScheduleConfig{},
	}
}
