// Command scriptsyncd is the server binary: a TLS accept loop over the
// framed wire protocol, a console accepting a single "quit" command, and a
// background sweep of idle in-memory project hubs. Structure ported from
// the teacher's cmd/server/main.go (env-driven Config, signal-handled
// graceful shutdown) with the teacher's stdin-free lifecycle swapped for
// the spec's console-driven one.
package main

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fountainhead/scriptsync/internal/certstore"
	"github.com/fountainhead/scriptsync/internal/docstore"
	"github.com/fountainhead/scriptsync/internal/endpoint"
	"github.com/fountainhead/scriptsync/internal/realtime"
	"github.com/fountainhead/scriptsync/internal/session"
	"github.com/fountainhead/scriptsync/internal/wire"
	"github.com/fountainhead/scriptsync/pkg/database"
	"github.com/fountainhead/scriptsync/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Config holds all server configuration, read from the environment.
type Config struct {
	Addr          string
	SQLiteURI     string
	DocumentsDir  string
	CertPath      string
	KeyPath       string
	IdleExpiry    time.Duration
	SweepInterval time.Duration
	AliveInterval time.Duration
	AliveTimeout  time.Duration
}

func main() {
	logger.Init()

	config := Config{
		Addr:          getEnv("SCRIPTSYNC_ADDR", ":8684"),
		SQLiteURI:     getEnv("SCRIPTSYNC_SQLITE_URI", "scriptsync.db"),
		DocumentsDir:  getEnv("SCRIPTSYNC_DOCUMENTS_DIR", "documents"),
		CertPath:      getEnv("SCRIPTSYNC_CERT", "cert.pcm"),
		KeyPath:       getEnv("SCRIPTSYNC_KEY", "key.pcm"),
		IdleExpiry:    time.Duration(getEnvInt("SCRIPTSYNC_IDLE_EXPIRY_HOURS", 24*7)) * time.Hour,
		SweepInterval: time.Duration(getEnvInt("SCRIPTSYNC_SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
		AliveInterval: time.Duration(getEnvInt("SCRIPTSYNC_ALIVE_INTERVAL_SECONDS", 5)) * time.Second,
		AliveTimeout:  time.Duration(getEnvInt("SCRIPTSYNC_ALIVE_TIMEOUT_SECONDS", 7)) * time.Second,
	}

	logger.Info("starting scriptsyncd on %s", config.Addr)

	db, err := database.New(config.SQLiteURI)
	if err != nil {
		logger.Error("open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	docs, err := docstore.New(config.DocumentsDir)
	if err != nil {
		logger.Error("open document store: %v", err)
		os.Exit(1)
	}

	tlsConfig, err := certstore.ServerConfig(config.CertPath, config.KeyPath)
	if err != nil {
		logger.Error("load TLS certificate: %v", err)
		os.Exit(1)
	}

	listener, err := tls.Listen("tcp", config.Addr, tlsConfig)
	if err != nil {
		logger.Error("listen on %s: %v", config.Addr, err)
		os.Exit(1)
	}

	hub := realtime.NewServer(db)
	catalog := endpoint.Default()

	quit := make(chan struct{})
	go runConsole(quit)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			logger.Info("signal received, shutting down")
		case <-quit:
			logger.Info("quit command received, shutting down")
		}
		listener.Close()
		os.Exit(0)
	}()

	go runSweeper(hub, config.IdleExpiry, config.SweepInterval)

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Error("accept: %v", err)
			return
		}
		go serveConn(conn, catalog, hub, db, docs, config.AliveInterval, config.AliveTimeout)
	}
}

// serveConn runs one connection's reader loop and its liveness prober under
// a shared errgroup.Group, per §5's design note that the socket's concurrent
// loops should be supervised rather than left as unmanaged goroutines: the
// reader closing stopLiveness is what lets the liveness goroutine return and
// the group's Wait unblock.
func serveConn(conn net.Conn, catalog *endpoint.Catalog, hub *realtime.Server, db *database.Database, docs *docstore.Store, aliveInterval, aliveTimeout time.Duration) {
	var sess *session.Session
	socket := wire.New(conn, catalog, func() {
		if sess != nil {
			sess.Shutdown()
		}
	})
	sess = session.New(socket, hub, db, docs)

	stopLiveness := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		err := socket.Serve()
		close(stopLiveness)
		return err
	})
	g.Go(func() error {
		runLiveness(socket, sess, aliveInterval, aliveTimeout, stopLiveness)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("connection %s: %v", conn.RemoteAddr(), err)
	}
}

// runLiveness implements the ARE_U_ALIVE/I_AM_ALIVE probe of spec §5:
// every aliveInterval the server probes, and if no reply lands within
// aliveTimeout of the last one the connection is closed.
func runLiveness(socket *wire.Socket, sess *session.Session, interval, timeout time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if time.Since(sess.LastSeen()) > timeout {
				socket.Close()
				return
			}
			if err := socket.Send(endpoint.ARE_U_ALIVE, nil); err != nil {
				return
			}
		}
	}
}

func runSweeper(hub *realtime.Server, idleExpiry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		hub.SweepIdleProjects(time.Now().Add(-idleExpiry))
	}
}

// runConsole implements the spec's single-command console: "quit" closes
// quit, any other line is echoed back as unrecognized.
func runConsole(quit chan<- struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" {
			close(quit)
			return
		}
		if line != "" {
			fmt.Printf("unrecognized command: %s\n", line)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
