package config

import (
	"os"
	"path/filepath"
)

const (
	appNameVar      = "APP_NAME"
	folderEnvVar    = "FOLDER"
	appStateFileVar = "APP_STATE_FILE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Go Auth Client")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

// GetAppStateFile returns the path of the file whose content drives the
// foreground/background monitor in development builds.
func (e EnvVars) GetAppStateFile() string {
	return GetEnv(appStateFileVar, filepath.Join(e.GetDataFolder(), "app.state"))
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
