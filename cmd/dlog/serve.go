package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ftpserver "github.com/fclairamb/ftpserverlib"
	log "github.com/fclairamb/go-log"
	"github.com/gorilla/handlers"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/net/webdav"

	"github.com/calsol/fatlog"
)

var (
	errNoServer = errors.New("nothing to serve, set --ftp, --webdav or --http")
	errAuth     = errors.New("invalid user or password")
	errNoTLS    = errors.New("TLS is not configured")
)

var (
	serveOpts = struct {
		ftp      string
		webdav   string
		http     string
		user     string
		password string
	}{}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the log files read-only over FTP, WebDAV or HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			for _, o := range []struct {
				flag string
				src  *string
				dst  *string
			}{
				{"ftp", &serveOpts.ftp, &cfg.Serve.FTP},
				{"webdav", &serveOpts.webdav, &cfg.Serve.WebDAV},
				{"http", &serveOpts.http, &cfg.Serve.HTTP},
				{"user", &serveOpts.user, &cfg.Serve.User},
				{"password", &serveOpts.password, &cfg.Serve.Password},
			} {
				if flags.Changed(o.flag) {
					*o.dst = *o.src
				}
			}
			if cfg.Serve.FTP == "" && cfg.Serve.WebDAV == "" && cfg.Serve.HTTP == "" {
				return errNoServer
			}

			volume, img, err := openVolume(true)
			if err != nil {
				return err
			}
			defer img.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, volume, cfg.Serve)
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveOpts.ftp, "ftp", "", "FTP listen address, e.g. :2121")
	serveCmd.Flags().StringVar(&serveOpts.webdav, "webdav", "", "WebDAV listen address, e.g. :8080")
	serveCmd.Flags().StringVar(&serveOpts.http, "http", "", "plain HTTP listen address, e.g. :8000")
	serveCmd.Flags().StringVar(&serveOpts.user, "user", "", "FTP user")
	serveCmd.Flags().StringVar(&serveOpts.password, "password", "", "FTP password, any password if empty")
}

// serve runs the configured servers until ctx is done or one of them fails.
func serve(ctx context.Context, volume *fatlog.FS, c serveConfig) error {
	errs := make(chan error, 3)
	var stops []func()

	if c.FTP != "" {
		srv := ftpserver.NewFtpServer(&ftpDriver{
			volume:   volume,
			log:      logger,
			addr:     c.FTP,
			user:     c.User,
			password: c.Password,
		})
		srv.Logger = logger
		go func() { errs <- srv.ListenAndServe() }()
		stops = append(stops, func() { srv.Stop() })
		logger.Info("Serving FTP", "addr", c.FTP)
	}

	for _, h := range []struct {
		name    string
		addr    string
		handler http.Handler
	}{
		{"WebDAV", c.WebDAV, newWebDAVHandler(volume, "")},
		{"HTTP", c.HTTP, http.FileServer(http.FS(fatlog.NewGoFS(volume)))},
	} {
		if h.addr == "" {
			continue
		}
		srv := &http.Server{
			Addr:    h.addr,
			Handler: handlers.LoggingHandler(os.Stderr, h.handler),
		}
		go func() { errs <- srv.ListenAndServe() }()
		stops = append(stops, func() { _ = srv.Close() })
		logger.Info("Serving "+h.name, "addr", h.addr)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}
	for _, stop := range stops {
		stop()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ftpDriver hands the mounted volume to every authenticated FTP client.
type ftpDriver struct {
	volume   *fatlog.FS
	log      log.Logger
	addr     string
	user     string
	password string
}

var _ ftpserver.MainDriver = (*ftpDriver)(nil)

func (d *ftpDriver) GetSettings() (*ftpserver.Settings, error) {
	return &ftpserver.Settings{ListenAddr: d.addr}, nil
}

func (d *ftpDriver) ClientConnected(cc ftpserver.ClientContext) (string, error) {
	d.log.Info("FTP client connected", "id", cc.ID(), "remote", cc.RemoteAddr())
	return "datalogger volume " + d.volume.Geometry().Label + ", read-only", nil
}

func (d *ftpDriver) ClientDisconnected(cc ftpserver.ClientContext) {
	d.log.Info("FTP client disconnected", "id", cc.ID())
}

func (d *ftpDriver) AuthUser(cc ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	if user != d.user || (d.password != "" && pass != d.password) {
		return nil, errAuth
	}
	return d.volume, nil
}

func (d *ftpDriver) GetTLSConfig() (*tls.Config, error) {
	return nil, errNoTLS
}

// webdavFS adapts an afero.Fs to webdav.FileSystem.
type webdavFS struct {
	afero.Fs
}

func (f *webdavFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return f.Fs.Mkdir(name, perm)
}

func (f *webdavFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *webdavFS) RemoveAll(ctx context.Context, name string) error {
	return f.Fs.RemoveAll(name)
}

func (f *webdavFS) Rename(ctx context.Context, oldName, newName string) error {
	return f.Fs.Rename(oldName, newName)
}

func (f *webdavFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	return f.Fs.Stat(name)
}

func newWebDAVHandler(fs afero.Fs, prefix string) http.Handler {
	return &webdav.Handler{
		Prefix:     prefix,
		FileSystem: &webdavFS{Fs: fs},
		LockSystem: webdav.NewMemLS(),
	}
}
