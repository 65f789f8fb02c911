// Package hosting defines the repository-lister boundary: a host API is only
// asked one question, "which repositories exist", and everything downstream
// works from the immutable descriptors it returns.
package hosting

import "context"

// Repository describes one remote repository as reported by the host.
type Repository struct {
	// Name is the unique repository name within the project/organization.
	Name string

	// RemoteURL is the HTTPS remote, used as the secondary transport.
	RemoteURL string

	// SSHURL is the SSH remote, used as the primary transport.
	SSHURL string

	// Disabled marks repositories the host has disabled or archived.
	Disabled bool
}

// A Lister enumerates the repositories of one project or organization.
type Lister interface {
	List(ctx context.Context) ([]Repository, error)
}
