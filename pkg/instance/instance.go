package instance

import "github.com/fastidp/fastidp-backend/pkg/env"

// GetID identifies the running process in logs. Cloud Run exposes the
// revision; elsewhere the hostname is used.
func GetID() string {
	return env.First("local", "FASTIDP_INSTANCE_ID", "K_REVISION", "HOSTNAME")
}
