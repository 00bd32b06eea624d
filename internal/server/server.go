// Package server is the browser-facing HTTP proxy. Requests to the MitM
// hosts are decrypted and, like plain HTTP requests, sent through the
// interceptor.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/sunbk201/tilespoof/internal/mitm"
)

type Server struct {
	addr   string
	proxy  *goproxy.ProxyHttpServer
	certs  *mitm.CertManager
	filter *mitm.HostnameFilter

	srv      *http.Server
	listener net.Listener
}

// New wires a goproxy server whose every request goes through rt. CONNECT
// targets allowed by filter are decrypted with certificates from certs;
// others are tunnelled.
func New(addr string, rt http.RoundTripper, certs *mitm.CertManager, filter *mitm.HostnameFilter) *Server {
	s := &Server{
		addr:   addr,
		proxy:  goproxy.NewProxyHttpServer(),
		certs:  certs,
		filter: filter,
	}
	s.proxy.Logger = printfLogger{}

	s.proxy.OnRequest().HandleConnectFunc(s.handleConnect)
	s.proxy.OnRequest().DoFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		ctx.RoundTripper = goproxy.RoundTripperFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Response, error) {
			return rt.RoundTrip(req)
		})
		return req, nil
	})
	return s
}

func (s *Server) handleConnect(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
	if s.certs == nil || !s.filter.AllowAddr(host) {
		slog.Debug("CONNECT tunnelled", slog.String("host", host))
		return goproxy.OkConnect, host
	}
	slog.Debug("CONNECT decrypted", slog.String("host", host))
	return &goproxy.ConnectAction{
		Action: goproxy.ConnectMitm,
		TLSConfig: func(host string, ctx *goproxy.ProxyCtx) (*tls.Config, error) {
			return s.certs.TLSConfig(host)
		},
	}, host
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("net.Listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.proxy,
		ReadHeaderTimeout: 30 * time.Second,
	}
	slog.Info("Proxy server listening", slog.String("addr", ln.Addr().String()), slog.Int("mitm_hosts", s.filter.Len()))

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Proxy server stopped", slog.Any("error", err))
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Handler() http.Handler {
	return s.proxy
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type printfLogger struct{}

func (printfLogger) Printf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), slog.String("component", "goproxy"))
}
