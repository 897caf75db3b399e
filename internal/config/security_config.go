package config

type SecurityConfig interface {
	GetInternalAPIToken() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetInternalAPIToken is the shared operator secret required by the publish
// and admin endpoints. Required at startup.
func (Security) GetInternalAPIToken() string {
	return GetEnv("INTERNAL_API_TOKEN", "")
}
