//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	URL       string
	Token     string
	Hashtag   string
	AllowPost bool
	MastoPath string
	Verbose   bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	hashtag := os.Getenv("MASTO_TEST_HASHTAG")
	if hashtag == "" {
		hashtag = "golang"
	}

	return &TestConfig{
		URL:       os.Getenv("MASTO_TEST_URL"),
		Token:     os.Getenv("MASTO_TEST_TOKEN"),
		Hashtag:   hashtag,
		AllowPost: os.Getenv("MASTO_TEST_ALLOW_POST") == "true",
		MastoPath: getMastoPath(),
		Verbose:   os.Getenv("MASTO_TEST_VERBOSE") == "true",
	}
}

// getMastoPath determines the path to the masto binary
func getMastoPath() string {
	if path := os.Getenv("MASTO_BINARY_PATH"); path != "" {
		return path
	}

	candidates := []string{
		"../../masto",
		"./masto",
		"../masto",
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "masto"
}

// SkipIfMissingConfig skips test if required config is missing
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.URL == "" {
		t.Skip("MASTO_TEST_URL not set, skipping integration test")
	}

	if _, err := exec.LookPath(config.MastoPath); err != nil {
		t.Skipf("masto binary not found at %s, skipping integration test", config.MastoPath)
	}
}

// SkipIfNoToken skips tests that need an authenticated account
func (config *TestConfig) SkipIfNoToken(t *testing.T) {
	t.Helper()

	if config.Token == "" {
		t.Skip("MASTO_TEST_TOKEN not set, skipping authenticated integration test")
	}
}

// CommandRunner runs masto commands against an isolated config file
type CommandRunner struct {
	config     *TestConfig
	configPath string
	t          *testing.T
}

// NewCommandRunner creates a new command runner
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	t.Helper()

	return &CommandRunner{
		config:     config,
		configPath: filepath.Join(t.TempDir(), "config.yml"),
		t:          t,
	}
}

// Run executes a masto command and returns output
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	return runner.RunWithInput("", args...)
}

// RunWithInput executes a masto command with stdin input
func (runner *CommandRunner) RunWithInput(input string, args ...string) (stdout, stderr string, err error) {
	args = append([]string{"--config", runner.configPath, "--no-color"}, args...)

	cmd := exec.Command(runner.config.MastoPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer

	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.Stdin = strings.NewReader(input)

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.MastoPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// Login stores the test token for the test instance
func (runner *CommandRunner) Login() error {
	_, stderr, err := runner.RunWithInput(runner.config.Token+"\n", "login", "--url", runner.config.URL)
	if err != nil {
		return fmt.Errorf("failed to log in: %s", stderr)
	}

	return nil
}

// GenerateTestText creates a unique status text
func GenerateTestText(prefix string) string {
	return fmt.Sprintf("%s %d", prefix, time.Now().Unix())
}

// DecodeJSON decodes command output into v, failing the test on error
func DecodeJSON(t *testing.T, output string, v any) {
	t.Helper()

	err := json.Unmarshal([]byte(strings.TrimSpace(output)), v)
	if err != nil {
		t.Fatalf("Output is not valid JSON: %v\n%s", err, output)
	}
}

// AssertYAMLOutput verifies command output looks like YAML
func AssertYAMLOutput(t *testing.T, output string) {
	t.Helper()

	output = strings.TrimSpace(output)
	if strings.Contains(output, ":") {
		return
	}

	t.Errorf("Output does not appear to be YAML: %s", output)
}
