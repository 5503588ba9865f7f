package provision

import (
	"fmt"
	"os"
	"os/user"

	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
)

// DetectActor gathers host and user information for the lock file audit trail.
func DetectActor() (*artifact.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &artifact.Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
