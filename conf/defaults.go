package conf

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "testflow.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.json_logs", false)

	// Queue defaults
	v.SetDefault("queue.max_in_flight", 0)               // unbounded
	v.SetDefault("queue.redeliver_after_seconds", 300)   // 5 minutes

	// Artifact defaults
	v.SetDefault("artifact.base_url", "http://localhost:8780/artifacts")

	// History defaults
	v.SetDefault("history.default_limit", 50)
	v.SetDefault("history.max_limit", 500)
}
