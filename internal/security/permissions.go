package security

import (
	"fmt"
	"os"
)

const (
	// PermConfigFile is for configuration files containing sensitive data.
	// rw-r----- (0640): owner can read/write, group can read, others have no access.
	PermConfigFile os.FileMode = 0640

	// PermLogFile is for log files that may contain deployment information.
	// rw-r----- (0640): owner can read/write, group can read, others have no access.
	PermLogFile os.FileMode = 0640

	// PermDBFile is for database files containing deployment history.
	PermDBFile os.FileMode = 0640

	// PermDirectory is for standard directories.
	PermDirectory os.FileMode = 0750

	// PermPrivateKey is for SSH private keys.
	// rw------- (0600): only owner can read/write, no one else has access.
	PermPrivateKey os.FileMode = 0600

	// PermPublicFile is for files that can be read by anyone, such as
	// proxy rule files installed on the remote host.
	PermPublicFile os.FileMode = 0644
)

// IsWorldReadable checks if a file mode is readable by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// CheckPrivateKey verifies that a private-key path exists, is a regular
// file, and is not readable by the world.
func CheckPrivateKey(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("private key not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("private key path is a directory: %s", path)
	}
	if IsWorldReadable(info.Mode().Perm()) {
		return fmt.Errorf("private key %s is world-readable (%04o), want at most %04o",
			path, uint32(info.Mode().Perm()), uint32(PermPrivateKey))
	}
	return nil
}
