package config

import "time"

// Options holds the runtime settings taken from the command line.
type Options struct {
	// SCMURL locates the configuration repository (link#branch).
	SCMURL string

	// Retries is the number of attempts for network operations such as
	// cloning the configuration repository.
	Retries int

	// ConfigInterval is how often the configuration repository is polled.
	ConfigInterval time.Duration

	// BatchInterval is the quiet period after the last tagging message
	// before the queued messages are processed as one batch.
	BatchInterval time.Duration

	// WaitRepoTimeout bounds how long a batch waits for the downstream
	// buildroot to regenerate after tagging.
	WaitRepoTimeout time.Duration

	// DryRun disables every write: no tagging, no builds, no pushes.
	DryRun bool

	// DistroGitSync is the optional DistroGitSync API endpoint.
	DistroGitSync string

	// Concurrency bounds parallel build system lookups.
	Concurrency int
}

// DefaultOptions returns the daemon defaults.
func DefaultOptions() Options {
	return Options{
		Retries:         3,
		ConfigInterval:  5 * time.Minute,
		BatchInterval:   2 * time.Second,
		WaitRepoTimeout: 15 * time.Minute,
		Concurrency:     8,
	}
}
