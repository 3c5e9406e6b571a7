package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// DockerTestEnv manages Docker Compose lifecycle for integration tests
type DockerTestEnv struct {
	t           *testing.T
	composePath string
	services    []string
	started     bool
	projectName string
	ports       map[string]map[int]int // service -> containerPort -> hostPort
}

// servicePorts lists the container ports published by each compose service.
var servicePorts = map[string][]int{
	"postgres": {5432},
	"mysql":    {3306},
}

// StartDockerEnv starts Docker Compose services for integration testing
func StartDockerEnv(t *testing.T, services []string) *DockerTestEnv {
	t.Helper()

	SkipIfDockerUnavailable(t)

	composePath := findDockerComposePath(t)
	if composePath == "" {
		t.Fatal("docker-compose.yml not found in tests/integration/")
	}

	// UnixNano keeps parallel packages from sharing a project
	projectName := fmt.Sprintf("wbctl-test-%d", time.Now().UnixNano())

	env := &DockerTestEnv{
		t:           t,
		composePath: composePath,
		services:    services,
		projectName: projectName,
	}

	env.start()
	t.Cleanup(env.Stop)

	if err := env.WaitForHealthy(90 * time.Second); err != nil {
		t.Fatalf("Docker services failed to become healthy: %v", err)
	}
	if err := env.discoverPorts(); err != nil {
		t.Fatalf("Failed to discover ports: %v", err)
	}

	return env
}

// SkipIfDockerUnavailable skips the test if Docker is not available
func SkipIfDockerUnavailable(t *testing.T) {
	t.Helper()

	if !IsDockerAvailable() {
		t.Skip("Docker not available, skipping integration test")
	}
}

// IsDockerAvailable checks if Docker and the compose plugin are usable
func IsDockerAvailable() bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	if err := exec.Command("docker", "ps").Run(); err != nil {
		return false
	}
	return exec.Command("docker", "compose", "version").Run() == nil
}

func (e *DockerTestEnv) compose(args ...string) *exec.Cmd {
	full := append([]string{"compose", "-f", e.composePath, "-p", e.projectName}, args...)
	cmd := exec.Command("docker", full...)
	cmd.Dir = filepath.Dir(e.composePath)
	return cmd
}

func (e *DockerTestEnv) start() {
	e.t.Helper()

	cmd := e.compose(append([]string{"up", "-d"}, e.services...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	e.t.Logf("Starting Docker services: %v", e.services)
	if err := cmd.Run(); err != nil {
		e.t.Fatalf("Failed to start Docker services: %v", err)
	}
	e.started = true
}

// Stop stops and removes Docker Compose services
func (e *DockerTestEnv) Stop() {
	if !e.started {
		return
	}

	cmd := e.compose("down", "-v")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		e.t.Logf("Warning: Failed to stop Docker services: %v", err)
	}
	e.started = false
}

// WaitForHealthy waits for all services to report healthy
func (e *DockerTestEnv) WaitForHealthy(timeout time.Duration) error {
	e.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for services to be healthy")
		case <-ticker.C:
			if e.checkHealth() {
				e.t.Logf("All services are healthy")
				return nil
			}
		}
	}
}

func (e *DockerTestEnv) checkHealth() bool {
	for _, service := range e.services {
		// Compose names containers {project}-{service}-{replica}
		containerName := fmt.Sprintf("%s-%s-1", e.projectName, service)

		output, err := exec.Command("docker", "inspect",
			"--format", "{{if .State.Health}}{{.State.Health.Status}}{{else}}{{.State.Status}}{{end}}",
			containerName).Output()
		if err != nil {
			return false
		}
		switch strings.TrimSpace(string(output)) {
		case "healthy", "running":
		default:
			return false
		}
	}
	return true
}

func (e *DockerTestEnv) discoverPorts() error {
	e.ports = make(map[string]map[int]int)

	for _, service := range e.services {
		e.ports[service] = make(map[int]int)

		for _, containerPort := range servicePorts[service] {
			output, err := e.compose("port", service, fmt.Sprintf("%d", containerPort)).Output()
			if err != nil {
				return fmt.Errorf("failed to get port for %s:%d: %w", service, containerPort, err)
			}

			// "0.0.0.0:32768" -> 32768
			portStr := strings.TrimSpace(string(output))
			idx := strings.LastIndex(portStr, ":")
			if idx < 0 {
				return fmt.Errorf("unexpected port output format: %s", portStr)
			}
			hostPort := 0
			if _, err := fmt.Sscanf(portStr[idx+1:], "%d", &hostPort); err != nil {
				return fmt.Errorf("failed to parse host port from %s: %w", portStr, err)
			}

			e.ports[service][containerPort] = hostPort
			e.t.Logf("Discovered port mapping: %s:%d -> localhost:%d", service, containerPort, hostPort)
		}
	}
	return nil
}

// GetPort returns the host port for a service's container port
func (e *DockerTestEnv) GetPort(service string, containerPort int) int {
	if ports, ok := e.ports[service]; ok {
		if hostPort, ok := ports[containerPort]; ok {
			return hostPort
		}
	}
	return containerPort
}

// PostgresDSN returns a lib/pq connection string for the postgres service.
func (e *DockerTestEnv) PostgresDSN() string {
	return fmt.Sprintf("host=127.0.0.1 port=%d user=test password=test-password dbname=refine sslmode=disable",
		e.GetPort("postgres", 5432))
}

// MySQLDSN returns a go-sql-driver DSN for the mysql service.
func (e *DockerTestEnv) MySQLDSN() string {
	return fmt.Sprintf("test:test-password@tcp(127.0.0.1:%d)/refine", e.GetPort("mysql", 3306))
}

func findDockerComposePath(t *testing.T) string {
	t.Helper()

	candidates := []string{
		"../integration/docker-compose.yml",
		"../../tests/integration/docker-compose.yml",
		"tests/integration/docker-compose.yml",
	}

	// Walk up to the module root
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for {
			if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
				candidates = append(candidates, filepath.Join(dir, "tests/integration/docker-compose.yml"))
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	for _, path := range candidates {
		if absPath, err := filepath.Abs(path); err == nil {
			if _, err := os.Stat(absPath); err == nil {
				return absPath
			}
		}
	}
	return ""
}
