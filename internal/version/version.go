package version

// Version is the client core current released version.
// This value can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/rhynoai/rhynochat/internal/version.Version=v1.4.0"
//
// Semantic versioning: https://semver.org/
var Version = "0.0.0-dev"

// GitCommit is the git commit hash at build time.
// Set via ldflags: -X github.com/rhynoai/rhynochat/internal/version.GitCommit=$(git rev-parse HEAD)
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
// Set via ldflags: -X github.com/rhynoai/rhynochat/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)
var BuildTime = "unknown"

// UserAgent is sent with every backend request so the server can tell client
// builds apart.
func UserAgent() string {
	return "rhynochat/" + Version
}
