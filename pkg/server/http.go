package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"engagement-ledger/pkg/config"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewHttpServer),
	fx.Invoke(Run),
)

// Server serves the ledger API. With TLS enabled the key pair is reloaded
// from disk whenever it is rotated, without dropping connections.
type Server struct {
	server *http.Server

	mu       sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string

	stop chan struct{}
}

type Params struct {
	fx.In
	Config *config.Config
	Engine *gin.Engine
}

func NewHttpServer(p Params) *Server {
	cfg := p.Config
	srv := &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Addr),
			Handler:      p.Engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		certPath: cfg.TLS.CertPath,
		keyPath:  cfg.TLS.KeyPath,
		stop:     make(chan struct{}),
	}

	if cfg.TLS.Enable {
		if err := srv.reloadCert(); err != nil {
			zap.L().Error("failed to load TLS cert", zap.Error(err))
		}
		srv.server.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: srv.getCertificate,
		}
	}

	return srv
}

func (s *Server) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cert == nil {
		return nil, errors.New("no TLS cert loaded")
	}
	return s.cert, nil
}

// reloadCert keeps the previous pair when the new one fails to parse, so a
// half-written rotation never takes the listener down.
func (s *Server) reloadCert() error {
	cert, err := tls.LoadX509KeyPair(s.certPath, s.keyPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cert = &cert
	s.mu.Unlock()
	return nil
}

// watchTLSFiles watches the directories holding the pair rather than the
// files themselves. Secret mounts rotate by swapping a symlink, which a
// file watch would lose after the first rename.
func (s *Server) watchTLSFiles() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("failed to create fsnotify watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(s.certPath): {},
		filepath.Dir(s.keyPath):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			zap.L().Error("failed to watch TLS directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	for {
		select {
		case <-s.stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !s.isCertEvent(event) {
				continue
			}
			if err := s.reloadCert(); err != nil {
				zap.L().Warn("TLS cert reload skipped", zap.String("file", event.Name), zap.Error(err))
				continue
			}
			zap.L().Info("TLS certificate reloaded", zap.String("file", event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("watcher error", zap.Error(err))
		}
	}
}

func (s *Server) isCertEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	dirOf := func(p string) string { return filepath.Dir(filepath.Clean(p)) }
	switch {
	case name == filepath.Clean(s.certPath), name == filepath.Clean(s.keyPath):
		return true
	case filepath.Base(name) == "..data":
		// kubernetes secret volume swap
		return filepath.Dir(name) == dirOf(s.certPath) || filepath.Dir(name) == dirOf(s.keyPath)
	}
	return false
}

func Run(lc fx.Lifecycle, srv *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			serve := srv.server.ListenAndServe
			if srv.server.TLSConfig != nil {
				go srv.watchTLSFiles()
				zap.L().Info("Starting ledger API with tls", zap.String("addr", srv.server.Addr))
				// certificates come from TLSConfig.GetCertificate
				serve = func() error { return srv.server.ListenAndServeTLS("", "") }
			} else {
				zap.L().Info("Starting ledger API without tls", zap.String("addr", srv.server.Addr))
			}

			go func() {
				if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Error("ledger API stopped", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Shutting down ledger API gracefully...")
			close(srv.stop)
			return srv.server.Shutdown(ctx)
		},
	})
}
