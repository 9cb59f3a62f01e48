// Package collector implements the UDP-listening counterpart to probe: it
// decodes each instrumentation datagram and persists it into a SQLite
// table, creating the table on first use.
package collector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"

	_ "modernc.org/sqlite"

	"github.com/cwbudde/go-instrument/internal/instdata"
)

const (
	DefaultDBName    = "instrumentation.db"
	DefaultTableName = "instrumentation"
	defaultBinding   = "0.0.0.0:8080"
)

// Config configures a single collector run.
type Config struct {
	DBName    string
	TableName string
	RunName   string
	Bind      string
}

// Collector listens for UDP instrumentation datagrams and persists each
// decoded record into a SQLite table.
type Collector struct {
	cfg  Config
	db   *sql.DB
	conn net.PacketConn
}

// Open connects to (creating if necessary) the configured SQLite database
// and ensures the target table exists.
func Open(cfg Config) (*Collector, error) {
	if cfg.DBName == "" {
		cfg.DBName = DefaultDBName
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if cfg.Bind == "" {
		cfg.Bind = defaultBinding
	}

	db, err := sql.Open("sqlite", cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("collector: opening database %s: %w", cfg.DBName, err)
	}

	c := &Collector{cfg: cfg, db: db}
	if err := c.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Collector) createTable() error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		time_stamp REAL PRIMARY KEY, counter REAL, pid INTEGER,
		thread_id TEXT, machine_id TEXT, absolute_path TEXT,
		description TEXT, ast_depth REAL, source_file TEXT,
		lines_begin REAL, lines_end REAL
	)`, c.cfg.TableName)
	if _, err := c.db.Exec(stmt); err != nil {
		return fmt.Errorf("collector: creating table %s: %w", c.cfg.TableName, err)
	}
	return nil
}

// Close releases the database handle and, if Run bound one, the socket.
func (c *Collector) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return c.db.Close()
}

// Run binds a UDP socket and processes datagrams until ctx is canceled or a
// socket error occurs. A malformed or oversize datagram is logged and
// dropped; a database insert failure is logged and the loop continues —
// runtime collector errors never abort a run, matching the error-handling
// design's treatment of probe-side failures.
func (c *Collector) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", c.cfg.Bind)
	if err != nil {
		return fmt.Errorf("collector: binding %s: %w", c.cfg.Bind, err)
	}
	c.conn = conn
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	slog.Info("collector: listening", "address", c.cfg.Bind, "run", c.cfg.RunName, "table", c.cfg.TableName)

	buf := make([]byte, instdata.MaxDatagramSize+4)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("collector: reading datagram: %w", err)
		}
		if n > instdata.MaxDatagramSize {
			slog.Warn("collector: dropping oversize datagram", "from", addr, "bytes", n)
			continue
		}

		dyn, static, err := instdata.Unmarshal(buf[:n])
		if err != nil {
			slog.Warn("collector: dropping malformed datagram", "from", addr, "error", err)
			continue
		}
		if err := c.insert(dyn, static); err != nil {
			slog.Warn("collector: insert failed", "error", err)
		}
	}
}

func (c *Collector) insert(dyn instdata.DynData, static instdata.StaticData) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (
		time_stamp, counter, pid, thread_id, machine_id, absolute_path,
		description, ast_depth, source_file, lines_begin, lines_end
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, c.cfg.TableName)

	_, err := c.db.Exec(stmt,
		float64(dyn.SystemTimeNs), float64(dyn.Counter), dyn.Pid, dyn.ThreadID, dyn.MachineID,
		static.AbsolutePath, static.Description, float64(static.AstDepth), static.SourceFile,
		float64(static.LinesBegin), float64(static.LinesEnd),
	)
	if err != nil {
		return fmt.Errorf("collector: inserting record: %w", err)
	}
	return nil
}
