package terraform

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// wellKnownPaths are checked after PATH lookup fails.
var wellKnownPaths = []string{
	"/usr/local/bin/terraform",
	"/usr/bin/terraform",
	"/opt/homebrew/bin/terraform",
}

var wellKnownPathsWindows = []string{
	`C:\terraform\terraform.exe`,
	`C:\Program Files\Terraform\terraform.exe`,
}

// Locate finds the terraform binary: an explicit override wins, then
// PATH lookup, then a fixed set of well-known install locations. An
// empty return with nil error never happens; callers that want
// auto-install fall back to Installer on error.
func Locate(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override, nil
		}
		return "", fmt.Errorf("terraform override path %s does not exist", override)
	}

	if path, err := exec.LookPath("terraform"); err == nil {
		return path, nil
	}

	candidates := wellKnownPaths
	if runtime.GOOS == "windows" {
		candidates = wellKnownPathsWindows
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("terraform binary not found on PATH or at well-known locations")
}
