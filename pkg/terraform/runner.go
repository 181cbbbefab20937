// Package terraform wraps everything that touches the external
// terraform tool: process invocation, binary discovery and
// installation, workspace layout, and cleaning of oracle-generated
// HCL.
package terraform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout caps a single terraform invocation when the caller
// does not specify one.
const DefaultTimeout = 15 * time.Minute

// Command describes one external process invocation.
type Command struct {
	// Binary is the path to the terraform executable.
	Binary string

	// Args are the arguments, binary excluded.
	Args []string

	// Dir is the working directory.
	Dir string

	// Env is the full process environment. Nil inherits the parent
	// environment.
	Env []string

	// Timeout caps wall-clock runtime; zero means DefaultTimeout.
	Timeout time.Duration
}

// Result is the outcome of a process invocation.
type Result struct {
	// ExitCode is the process exit code.
	ExitCode int

	// Stdout and Stderr are the captured output streams.
	Stdout string
	Stderr string

	// Duration is the wall-clock runtime.
	Duration time.Duration

	// TimedOut is true when the timeout killed the process.
	TimedOut bool
}

// Runner executes external commands. Stage callbacks depend on this
// interface so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a process-backed runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command, capturing stdout and stderr. A nonzero
// exit is not an error: it is reported through Result.ExitCode so
// callers can route on the tri-state plan contract. Only failures to
// start the process, or a killed-by-timeout process, return an error
// alongside the partial result.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("command binary is required")
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc := exec.CommandContext(runCtx, cmd.Binary, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.Env = cmd.Env

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	start := time.Now()
	err := proc.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, fmt.Errorf("terraform %s timed out after %s", firstArg(cmd.Args), timeout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run terraform %s: %w", firstArg(cmd.Args), err)
	}

	result.ExitCode = 0
	return result, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// Credentials holds the cloud credentials injected into the process
// environment per run. Values never touch disk.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// BuildEnv assembles the process environment for a run: credentials
// and region injected explicitly, proxy settings passed through from
// the host unchanged, plus HOME/PATH so terraform can find its plugin
// cache.
func BuildEnv(creds Credentials, region string) []string {
	passthrough := []string{
		"HOME", "PATH", "TMPDIR",
		"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
		"http_proxy", "https_proxy", "no_proxy",
		"TF_PLUGIN_CACHE_DIR",
	}

	env := make([]string, 0, len(passthrough)+4)
	for _, key := range passthrough {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}

	if creds.AccessKeyID != "" {
		env = append(env, "AWS_ACCESS_KEY_ID="+creds.AccessKeyID)
	}
	if creds.SecretAccessKey != "" {
		env = append(env, "AWS_SECRET_ACCESS_KEY="+creds.SecretAccessKey)
	}
	if creds.SessionToken != "" {
		env = append(env, "AWS_SESSION_TOKEN="+creds.SessionToken)
	}
	if region != "" {
		env = append(env, "AWS_DEFAULT_REGION="+region)
	}

	return env
}

// dependencyLockSignatures are the stderr fragments that identify the
// "dependency changed" init failure; init retries once with -upgrade
// when one is present.
var dependencyLockSignatures = []string{
	"Inconsistent dependency lock file",
	"provider requirements cannot be satisfied",
	"lock file is out of date",
}

// IsDependencyLockFailure reports whether stderr matches the init
// failure signature that a -upgrade retry can fix.
func IsDependencyLockFailure(stderr string) bool {
	for _, sig := range dependencyLockSignatures {
		if strings.Contains(stderr, sig) {
			return true
		}
	}
	return false
}
