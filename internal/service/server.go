package service

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP 服务封装
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer 创建 HTTP 服务
func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s, logger: logger}
}

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	s.logger.Info("Starting hydro-events HTTP server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Stop 优雅停止 HTTP 服务
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping hydro-events HTTP server")
	return s.httpServer.Shutdown(ctx)
}
