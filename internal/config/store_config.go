package config

type StoreConfig interface {
	GetDatabaseURL() string
	GetRedisURL() string
	GetSessionCipherKey() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetDatabaseURL returns the Postgres connection string. When empty the
// service falls back to in-memory stores (single instance, non-durable).
func (Store) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

// GetRedisURL optionally points handshake records at Redis so expiry is
// native rather than filtered on read.
func (Store) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

// GetSessionCipherKey is a base64 encoded 32 byte key. When set, stored
// credential and handshake payloads are sealed at rest.
func (Store) GetSessionCipherKey() string {
	return GetEnv("SESSION_CIPHER_KEY", "")
}
