package config

type Config interface {
	EnvConfig
	IdPConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetAppStateFile() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	IdP
	Storage
}

func New() Config {
	return mainConfig{}
}
