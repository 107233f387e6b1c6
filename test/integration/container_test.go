//go:build integration

package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/telecare/telecare/internal/platform/db"
)

const (
	postgresImage = "postgres:16-alpine"
	readyTimeout  = 30 * time.Second
)

// startPostgres runs a throwaway Postgres container on a Docker-assigned host
// port and returns its connection string and a cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=telecare",
		"-e", "POSTGRES_PASSWORD=telecare",
		"-e", "POSTGRES_DB=telecare_test",
		postgresImage,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run: %w: %s", err, out)
	}
	id := strings.TrimSpace(string(out))
	cleanup := func() { _ = exec.Command("docker", "rm", "-f", id).Run() }

	out, err = exec.CommandContext(ctx, "docker", "port", id, "5432/tcp").Output()
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("docker port: %w", err)
	}
	// "127.0.0.1:49153", possibly followed by an IPv6 line.
	hostPort := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])

	connStr := fmt.Sprintf("postgres://telecare:telecare@%s/telecare_test?sslmode=disable", hostPort)
	if err := waitForPostgres(ctx, connStr); err != nil {
		cleanup()
		return "", nil, err
	}
	return connStr, cleanup, nil
}

// waitForPostgres polls until the server accepts queries. The image restarts
// Postgres once after init, so a single successful ping is not enough.
func waitForPostgres(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(readyTimeout)
	streak := 0
	for time.Now().Before(deadline) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		pool, err := db.NewPool(pingCtx, connStr, 1, 0)
		cancel()
		if err == nil {
			pool.Close()
			if streak++; streak == 3 {
				return nil
			}
		} else {
			streak = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("postgres not ready after %v", readyTimeout)
}
