// Package server wraps the HTTP listener. h2c lets gRPC-web style clients
// and plain browsers share one cleartext port in local deployments.
package server

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type Server struct {
	http *http.Server
}

func New(addr string, handler http.Handler) *Server {
	h2s := &http2.Server{}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           h2c.NewHandler(handler, h2s),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
