package buildconfig

// Build-time variables injected via ldflags:
//
//	-X github.com/Harshitk-cp/trustfuse/internal/buildconfig.version=v1.2.0
var (
	version = "dev"
	commit  = "unknown"
)

const serviceName = "trustfuse"

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is reported by the health endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"service": serviceName,
		"version": version,
		"commit":  commit,
	}
}
