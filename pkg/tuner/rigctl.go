package tuner

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
)

// RigctlConfig configures a connection to a rigctld TCP endpoint
// (Hamlib's network control daemon, `rigctld -m 2 ...`).
type RigctlConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Rigctl drives a receiver over rigctld's line-oriented TCP protocol.
// The connection is dialed lazily and redialed on the next command
// after any I/O error, mirroring the reconnect-on-failure posture of
// a long-lived peer client.
type Rigctl struct {
	cfg RigctlConfig
	log *logger.Logger

	mu   sync.Mutex
	conn net.Conn
}

// NewRigctl creates a rigctld-backed Tuner. No connection is made
// until the first command.
func NewRigctl(cfg RigctlConfig, log *logger.Logger) *Rigctl {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Rigctl{cfg: cfg, log: log.WithComponent("tuner.rigctl")}
}

func (r *Rigctl) ensureConn(ctx context.Context) (net.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}
	addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
	d := net.Dialer{Timeout: r.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rigctl dial %s: %w", addr, err)
	}
	r.conn = conn
	return conn, nil
}

func (r *Rigctl) dropConn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

func (r *Rigctl) command(ctx context.Context, cmd string) (string, error) {
	conn, err := r.ensureConn(ctx)
	if err != nil {
		return "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(r.cfg.Timeout))
	}

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		r.dropConn()
		return "", fmt.Errorf("rigctl write %q: %w", cmd, err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		r.dropConn()
		return "", fmt.Errorf("rigctl read reply to %q: %w", cmd, err)
	}
	return strings.TrimSpace(line), nil
}

// SetFreq issues rigctld's "F <hz>" set-frequency command. Each call
// is tagged with a correlation id so a slow or failing tune can be
// traced across the debug/warn log pair it produces.
func (r *Rigctl) SetFreq(ctx context.Context, hz uint64) error {
	reqID := uuid.NewString()
	reply, err := r.command(ctx, fmt.Sprintf("F %d", hz))
	if err != nil {
		return fmt.Errorf("tune request %s: %w", reqID, err)
	}
	if strings.HasPrefix(reply, "RPRT") && reply != "RPRT 0" {
		return fmt.Errorf("tune request %s: rigctl set_freq(%d) failed: %s", reqID, hz, reply)
	}
	r.log.Debug("tuned", logger.Uint64("hz", hz), logger.String("request_id", reqID))
	return nil
}

// SetBandwidth issues rigctld's "M <mode> <passband>" set-mode
// command, preserving the currently selected mode by passing "?".
func (r *Rigctl) SetBandwidth(ctx context.Context, hz uint32) error {
	if hz == 0 {
		return nil
	}
	reply, err := r.command(ctx, fmt.Sprintf("M ? %d", hz))
	if err != nil {
		return err
	}
	if strings.HasPrefix(reply, "RPRT") && reply != "RPRT 0" {
		return fmt.Errorf("rigctl set_bandwidth(%d) failed: %s", hz, reply)
	}
	return nil
}

// CurrentFreq issues rigctld's "f" get-frequency command.
func (r *Rigctl) CurrentFreq(ctx context.Context) (uint64, error) {
	reply, err := r.command(ctx, "f")
	if err != nil {
		return 0, err
	}
	hz, err := strconv.ParseUint(reply, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rigctl get_freq: unexpected reply %q: %w", reply, err)
	}
	return hz, nil
}

// Close releases the underlying TCP connection, if any.
func (r *Rigctl) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
