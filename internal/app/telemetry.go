package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ai-cruise/internal/config"
	"ai-cruise/internal/journal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 展示层与服务同机部署，跨域来源不做限制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveTelemetry 启动面向展示层的推送服务:
//
//	GET  /ws       事件总线的 WebSocket 实时流
//	GET  /events   历史流水查询
//	GET  /symbols  预设交易对列表
//	POST /swap     热切换交易参数
//	POST /panic    紧急平仓（需 confirm=yes）
func (a *App) serveTelemetry(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.handleWS)
	mux.HandleFunc("/events", a.handleEvents)
	mux.HandleFunc("/symbols", a.handleSymbols)
	mux.HandleFunc("/swap", a.handleSwap)
	mux.HandleFunc("/panic", a.handlePanic)

	srv := &http.Server{Addr: a.cfg.Telemetry.ListenAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			a.logger.Warn("关闭推送服务失败", zap.Error(err))
		}
	}()

	a.logger.Info("推送服务已启动", zap.String("addr", a.cfg.Telemetry.ListenAddr))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := a.bus.Subscribe(256)
	defer cancel()

	// 读协程只负责感知断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 200
	if qs := q.Get("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > 1000 {
				v = 1000
			}
			limit = v
		}
	}

	eventType := journal.EventType("")
	if typ := strings.TrimSpace(q.Get("type")); typ != "" {
		eventType = journal.EventType(strings.ToLower(typ))
	}

	events, err := a.journal.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, events, a.logger)
}

func (a *App) handleSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"symbols": config.DefaultSymbols,
		"current": a.mgr.Params().Symbol,
	}, a.logger)
}

func (a *App) handleSwap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Symbol   string `json:"symbol"`
		Mode     string `json:"mode"`
		Leverage int    `json:"leverage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败: "+err.Error(), http.StatusBadRequest)
		return
	}

	ok, msg := a.SwapTo(r.Context(), req.Symbol, req.Mode, req.Leverage)
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusConflict)
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"success": ok, "message": msg}); err != nil {
		a.logger.Warn("写入响应失败", zap.Error(err))
	}
}

func (a *App) handlePanic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Query().Get("confirm") != "yes" {
		http.Error(w, "紧急平仓需要 confirm=yes 确认", http.StatusBadRequest)
		return
	}

	msg, err := a.PanicClose(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"message": msg}, a.logger)
}

func writeJSON(w http.ResponseWriter, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", zap.Error(err))
	}
}
