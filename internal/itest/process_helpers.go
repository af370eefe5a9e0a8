// Helpers for starting and managing server processes in integration tests.
package itest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"time"
)

// StartServer starts the server binary as a subprocess, listening for RTMP
// on rtmpPort. configPath may be empty to run with built-in defaults.
func StartServer(ctx context.Context, binPath string, rtmpPort int, configPath string) (*exec.Cmd, error) {
	args := []string{fmt.Sprintf("%d", rtmpPort)}
	if configPath != "" {
		args = append(args, configPath)
	}
	cmd := exec.CommandContext(ctx, binPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server: %w", err)
	}
	return cmd, nil
}

// WaitForHealth waits for the health endpoint to become available.
func WaitForHealth(healthPort int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://localhost:%d/healthz", healthPort)

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

	return fmt.Errorf("health endpoint not available after %v", timeout)
}

// findFreePort finds a free TCP port.
func findFreePort() (int, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port, nil
}

// buildServerBinary compiles cmd/server into dir and returns its path.
func buildServerBinary(dir string) (string, error) {
	binPath := dir + "/server"
	cmd := exec.Command("go", "build", "-o", binPath, "../../cmd/server")
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("build server: %w\n%s", err, out)
	}
	return binPath, nil
}
