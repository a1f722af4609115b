package supervisor

import (
	"bufio"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
)

// LogStream yields decoded log lines from a running container until the
// context is cancelled or the underlying stream closes, the cancellable-
// iterator shape recommended for log streaming.
type LogStream struct {
	scanner *bufio.Scanner
	closer  interface{ Close() error }
}

// StreamLogs opens a (optionally following) log stream for containerID,
// matching stream_container_logs's follow/tail/timestamps behaviour.
func (s *Supervisor) StreamLogs(ctx context.Context, containerID string, follow bool, tail int) (*LogStream, error) {
	rc, err := s.api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       fmt.Sprintf("%d", tail),
		Timestamps: true,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrContainerNotFound
		}
		return nil, fmt.Errorf("streaming logs: %w", err)
	}
	return &LogStream{scanner: bufio.NewScanner(rc), closer: rc}, nil
}

// Next blocks for the next log line. It returns ok=false once the stream
// is exhausted or closed; callers should then check Err.
func (ls *LogStream) Next() (line string, ok bool) {
	if !ls.scanner.Scan() {
		return "", false
	}
	return demuxLine(ls.scanner.Bytes()), true
}

// Err reports any error encountered while scanning, nil on clean EOF.
func (ls *LogStream) Err() error {
	return ls.scanner.Err()
}

// Close releases the underlying log stream connection.
func (ls *LogStream) Close() error {
	return ls.closer.Close()
}

// demuxLine strips the 8-byte Docker multiplexed-stream header the Engine
// API prefixes each frame with when a container is attached without a TTY.
func demuxLine(raw []byte) string {
	if len(raw) > 8 {
		switch raw[0] {
		case 1, 2: // stdout, stderr
			return string(raw[8:])
		}
	}
	return string(raw)
}
