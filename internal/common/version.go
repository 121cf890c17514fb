package common

// Set at link time: -ldflags "-X tarediiran-industries.com/transit-map/internal/common.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
)
