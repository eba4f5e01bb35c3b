//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// nesteggServer manages a running `nestegg serve` process.
type nesteggServer struct {
	cmd     *exec.Cmd
	env     []string
	address string
	apiKey  string
	logFile string
}

// binaryEnv returns the environment pointing nestegg at dataDir. Config is
// taken entirely from environment variables.
func binaryEnv(dataDir, backend string, extra ...string) []string {
	storagePath := filepath.Join(dataDir, "goals.json")
	if backend == "sqlite" {
		storagePath = filepath.Join(dataDir, "goals.db")
	}
	env := append(os.Environ(),
		"NESTEGG_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"),
		"NESTEGG_ENV_FILE="+filepath.Join(dataDir, "nonexistent.env"),
		"NESTEGG_STORAGE_BACKEND="+backend,
		"NESTEGG_STORAGE_PATH="+storagePath,
		"NESTEGG_LOG_FORMAT=json",
	)
	return append(env, extra...)
}

// startNestegg launches the server and waits for it to become healthy.
func startNestegg(t *testing.T, dataDir, backend string) *nesteggServer {
	t.Helper()
	requireNestegg(t)

	apiKey := "e2e-test-api-key"
	port := freePort(t)
	logFile := filepath.Join(dataDir, fmt.Sprintf("nestegg-%d.log", port))

	env := binaryEnv(dataDir, backend,
		"NESTEGG_HOST=127.0.0.1",
		fmt.Sprintf("NESTEGG_PORT=%d", port),
		"NESTEGG_API_KEY="+apiKey,
		// Long enough that only the shutdown flush can save the last write
		"NESTEGG_PERSIST_DEBOUNCE=30s",
	)

	cmd := exec.Command(nesteggBin, "serve")
	cmd.Env = env

	lf, err := os.Create(logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start nestegg: %v", err)
	}

	s := &nesteggServer{
		cmd:     cmd,
		env:     env,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		apiKey:  apiKey,
		logFile: logFile,
	}

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		t.Fatalf("nestegg not healthy: %v\n%s", err, s.logs())
	}
	return s
}

func (s *nesteggServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil && s.cmd.ProcessState == nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
	}
}

func (s *nesteggServer) logs() string {
	data, _ := os.ReadFile(s.logFile)
	return string(data)
}

func (s *nesteggServer) baseURL() string {
	return "http://" + s.address
}

func (s *nesteggServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := s.baseURL() + "/api/v1/health"

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("nestegg not healthy after %s", timeout)
}

// request sends an authenticated JSON request and returns status and body.
func (s *nesteggServer) request(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.baseURL()+path, r)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

// runCLI runs a nestegg subcommand against the same storage as the server.
func runCLI(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	requireNestegg(t)

	cmd := exec.Command(nesteggBin, args...)
	cmd.Env = env
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%v: %w\n%s", args, err, stderr.String())
	}
	return stdout.String(), nil
}

// freePort asks the kernel for a free TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
