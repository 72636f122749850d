package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/distccd-go/distccd/internal/access"
	"github.com/distccd-go/distccd/internal/config"
	"github.com/distccd-go/distccd/internal/job"
	"github.com/distccd-go/distccd/internal/logging"
	"github.com/distccd-go/distccd/internal/netsrv"
	"github.com/distccd-go/distccd/internal/pool"
)

var serveFlags struct {
	addr          string
	port          int
	allow         []string
	noDetach      bool
	deferAccept   bool
	maxWorkers    int
	maxRequests   int
	maxLifetime   time.Duration
	shutdownGrace time.Duration
	path          string
	allowAbsolute bool
	tempBase      string
	pidFile       string
	principal     string
	blacklist     string
	whitelist     string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run distccd as a daemon, listening for compile jobs",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.addr, "listen", "", "address to bind (default: all interfaces)")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 3632, "TCP port to listen on")
	serveCmd.Flags().StringArrayVar(&serveFlags.allow, "allow", nil, "HOST[/BITS] allowed to connect; repeatable")
	serveCmd.Flags().BoolVar(&serveFlags.noDetach, "no-detach", false, "stay attached to the controlling terminal")
	serveCmd.Flags().BoolVar(&serveFlags.deferAccept, "tcp-defer-accept", false, "enable TCP_DEFER_ACCEPT on the listening socket")
	serveCmd.Flags().IntVar(&serveFlags.maxWorkers, "jobs", 4, "maximum number of worker processes")
	serveCmd.Flags().IntVar(&serveFlags.maxRequests, "max-requests-per-worker", 50, "requests a worker serves before retiring")
	serveCmd.Flags().DurationVar(&serveFlags.maxLifetime, "max-worker-lifetime", 60*time.Second, "age at which a worker retires")
	serveCmd.Flags().DurationVar(&serveFlags.shutdownGrace, "shutdown-grace", 5*time.Second, "time to let workers exit after SIGTERM before SIGKILL")
	serveCmd.Flags().StringVar(&serveFlags.path, "path", "", "PATH used to resolve the compiler (default: inherited PATH)")
	serveCmd.Flags().BoolVar(&serveFlags.allowAbsolute, "enable-tcp-insecure", false, "allow clients to request an absolute compiler path")
	serveCmd.Flags().StringVar(&serveFlags.tempBase, "tmp-base", "", "base directory for job scratch trees (default: TMPDIR)")
	serveCmd.Flags().StringVar(&serveFlags.pidFile, "pid-file", "", "write the supervisor's PID to this file")
	serveCmd.Flags().StringVar(&serveFlags.principal, "gssapi-principal", "", "require this server principal for GSS-API auth")
	serveCmd.Flags().StringVar(&serveFlags.blacklist, "gssapi-blacklist", "", "path to a file of denied client principals, one per line")
	serveCmd.Flags().StringVar(&serveFlags.whitelist, "gssapi-whitelist", "", "path to a file of the only client principals allowed")
}

func buildConfig() (config.Config, error) {
	cfg := config.Defaults()
	cfg.EnvOverrides()

	cfg.Addr = serveFlags.addr
	cfg.Port = serveFlags.port
	cfg.NoDetach = serveFlags.noDetach
	cfg.DeferAccept = cfg.DeferAccept || serveFlags.deferAccept
	cfg.MaxWorkers = serveFlags.maxWorkers
	cfg.MaxRequests = serveFlags.maxRequests
	cfg.MaxLifetime = serveFlags.maxLifetime
	cfg.ShutdownGrace = serveFlags.shutdownGrace
	if serveFlags.path != "" {
		cfg.PATH = serveFlags.path
	}
	cfg.AllowAbsolute = cfg.AllowAbsolute || serveFlags.allowAbsolute
	if serveFlags.tempBase != "" {
		cfg.TempBase = serveFlags.tempBase
	}
	cfg.PidFile = serveFlags.pidFile
	if serveFlags.principal != "" {
		cfg.Principal = serveFlags.principal
		cfg.RequireAuth = true
	}
	cfg.BlacklistPath = serveFlags.blacklist
	cfg.WhitelistPath = serveFlags.whitelist

	allow := access.NewAllowList()
	for _, spec := range serveFlags.allow {
		m, err := access.ParseMask(spec)
		if err != nil {
			return cfg, err
		}
		allow.Add(m)
	}
	cfg.Allow = allow

	return cfg, nil
}

func runServe(c *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	mode := netsrv.DetectMode()
	if cfg.NoDetach {
		mode = netsrv.ModeDaemon
	}

	logger := logging.Default()

	if mode == netsrv.ModeInetd {
		return serveInetd(cfg, logger)
	}
	return serveDaemon(GetContext(), cfg, logger)
}

func serveInetd(cfg config.Config, logger *slog.Logger) error {
	conn := &stdioConn{}
	j := job.New(job.Config{PATH: cfg.PATH, AllowAbsolute: cfg.AllowAbsolute, TempBase: cfg.TempBase}, logger)
	_, err := j.Serve(context.Background(), conn)
	return err
}

func serveDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ln, err := netsrv.Listen(netsrv.Options{
		Addr:           cfg.Addr,
		Port:           cfg.Port,
		DeferAccept:    cfg.DeferAccept,
		DeferAcceptSec: cfg.DeferAcceptSec,
	})
	if err != nil {
		return err
	}
	defer ln.Close()

	if cfg.PidFile != "" {
		if err := os.WriteFile(cfg.PidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
			logger.Warn("failed to write pid file", slog.Any("err", err))
		}
	}

	sup := pool.NewSupervisor(pool.Limits{
		MaxWorkers:    cfg.MaxWorkers,
		MaxRequests:   cfg.MaxRequests,
		MaxLifetime:   cfg.MaxLifetime,
		ShutdownGrace: cfg.ShutdownGrace,
	}, logger, ln, cfg.MonitorDir)

	logger.Info("distccd listening", slog.String("addr", ln.Addr().String()))
	return sup.Run(ctx)
}

// stdioConn adapts fd 0/1 to an io.ReadWriter for inetd mode, where a
// super-server has already connected a peer to our standard streams.
type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
