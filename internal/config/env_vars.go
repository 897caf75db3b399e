package config

import (
	"os"
	"strings"
)

const (
	portEnvVar   = "PORT"
	appNameVar   = "APP_NAME"
	publicURLVar = "PUBLIC_URL"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetPublicURL() string
	GetEnv() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "PodWatch")
}

// GetPublicURL returns the externally reachable base URL of the service
// (e.g. "https://podwatch.example.com"). The OAuth client identifier,
// redirect URI, and hosted metadata documents are all derived from it.
func (EnvVars) GetPublicURL() string {
	return strings.TrimRight(GetEnv(publicURLVar, "http://localhost:8080"), "/")
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
