package config

type Config interface {
	EnvConfig
	ClientConfig
	ProviderConfig
	StoreConfig
	SecurityConfig
	WatcherConfig
}

type mainConfig struct {
	EnvVars
	Client
	Provider
	Store
	Security
	Watcher
}

func New() Config {
	return mainConfig{}
}
