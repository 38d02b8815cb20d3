package secure

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
)

// hostFingerprint derives a stable per-host, per-user passphrase for the
// encrypted file fallback. Not a secret in the cryptographic sense: the
// fallback protects against casual inspection and accidental leakage of
// the credential file, not against an attacker with local shell access.
func hostFingerprint() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "stagepass-host"
	}

	uid := "0"
	if u, err := user.Current(); err == nil {
		uid = u.Uid
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "/"
	}

	return fmt.Sprintf("%s|%s|%s|%s", hostname, uid, runtime.GOOS, home)
}
