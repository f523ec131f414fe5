package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.BaseDir == "" {
		cfg.Storage.BaseDir = "./output"
	}
	if cfg.Storage.UsersDBPath == "" {
		cfg.Storage.UsersDBPath = "./output/users.db"
	}
	if cfg.Engine.Command == "" {
		cfg.Engine.Command = "python"
	}
	if len(cfg.Engine.Args) == 0 {
		cfg.Engine.Args = []string{"engine/main.py"}
	}
	if cfg.Engine.TimeoutSeconds == 0 {
		cfg.Engine.TimeoutSeconds = 300
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "userId"
	}
}
