package config

import "time"

type ProviderConfig interface {
	GetPLCDirectoryURL() string
	GetHandshakeTTL() time.Duration
	GetRefreshLockWait() time.Duration
	GetTokenExpirySkew() time.Duration
	GetMetadataCacheTTL() time.Duration
}

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetPLCDirectoryURL() string {
	return GetEnv("PLC_DIRECTORY_URL", "https://plc.directory")
}

func (Provider) GetHandshakeTTL() time.Duration {
	return 30 * time.Minute
}

func (Provider) GetRefreshLockWait() time.Duration {
	return 10 * time.Second
}

// GetTokenExpirySkew is how close to expiry an access token may get before a
// restore refreshes it rather than using it.
func (Provider) GetTokenExpirySkew() time.Duration {
	return 1 * time.Minute
}

func (Provider) GetMetadataCacheTTL() time.Duration {
	return 15 * time.Minute
}
