package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 pprof 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterZoneRoutes 注册区域只读/摄入路由
// - GET  /events/api/v1/zones/{zone}/snapshot
// - GET  /events/api/v1/zones/{zone}/events?after_event_id=&limit=
// - GET  /events/api/v1/zones/{zone}/events/export
// - POST /events/api/v1/zones/{zone}/telemetry
// - POST /events/api/v1/zones/{zone}/cycle
func (r *Router) RegisterZoneRoutes(z *ZoneHandler) {
	r.Handle("/events/api/v1/zones/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/events/api/v1/zones/")
		parts := strings.Split(rest, "/")
		if len(parts) < 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		zoneID := parts[0]
		tail := strings.Join(parts[1:], "/")

		switch {
		case tail == "snapshot" && req.Method == http.MethodGet:
			z.GetSnapshot(w, req, zoneID)
		case tail == "events" && req.Method == http.MethodGet:
			z.ListEvents(w, req, zoneID)
		case tail == "events/export" && req.Method == http.MethodGet:
			z.ExportEvents(w, req, zoneID)
		case tail == "telemetry" && req.Method == http.MethodPost:
			z.IngestTelemetry(w, req, zoneID)
		case tail == "cycle" && req.Method == http.MethodPost:
			z.NotifyCycle(w, req, zoneID)
		case tail == "commands" && req.Method == http.MethodGet:
			z.ListCommands(w, req, zoneID)
		case tail == "alerts" && req.Method == http.MethodGet:
			z.ListAlerts(w, req, zoneID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterCommandRoutes 注册命令生命周期路由
// - POST /events/api/v1/commands
// - POST /events/api/v1/commands/{id}/status
func (r *Router) RegisterCommandRoutes(c *CommandHandler) {
	r.Handle("/events/api/v1/commands", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		c.CreateCommand(w, req)
	})

	r.Handle("/events/api/v1/commands/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/events/api/v1/commands/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		c.UpdateStatus(w, req, parts[0])
	})
}

// RegisterAlertRoutes 注册报警路由
// - POST /events/api/v1/alerts
// - POST /events/api/v1/alerts/{id}/status
func (r *Router) RegisterAlertRoutes(a *AlertHandler) {
	r.Handle("/events/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.RaiseAlert(w, req)
	})

	r.Handle("/events/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/events/api/v1/alerts/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		a.UpdateStatus(w, req, parts[0])
	})
}
