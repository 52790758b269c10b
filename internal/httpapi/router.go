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

// NewRouter 创建路由器
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

// Handle 注册处理函数
func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterTelemetryRoutes 注册遥测入口和控制台查询路由
func (r *Router) RegisterTelemetryRoutes(h *TelemetryHandler) {
	// 设备遥测入口
	r.Handle("/telemetry", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.PostTelemetry(w, req)
	})

	// 设备列表
	r.Handle("/console/api/v1/devices", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetDevices(w, req)
	})

	// 单台设备 devices/{id} 与 devices/{id}/latest
	r.Handle("/console/api/v1/devices/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(req.URL.Path, "/console/api/v1/devices/")
		if rest, ok := strings.CutSuffix(id, "/latest"); ok {
			if rest == "" || strings.Contains(rest, "/") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			h.GetDeviceLatest(w, req, rest)
			return
		}
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.GetDevice(w, req, id)
	})

	// 报警日志
	r.Handle("/console/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetAlerts(w, req)
	})
}
