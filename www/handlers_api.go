package www

import (
	"encoding/json"
	"net/http"
	"strconv"

	"bomdesk/store"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	dbOK := h.engine.DB().PingContext(r.Context()) == nil
	sm := h.engine.Summary()
	mc := h.engine.MsgClient()

	status := "ok"
	code := http.StatusOK
	if !dbOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"database":  dbOK,
		"redis":     map[string]bool{"enabled": sm.Enabled(), "healthy": sm.Healthy(r.Context())},
		"messaging": map[string]any{"backend": mc.Backend(), "connected": mc.IsConnected()},
	})
}

func (h *Handlers) apiAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	var (
		entries []*store.AuditEntry
		err     error
	)
	if et, id := r.URL.Query().Get("entity_type"), r.URL.Query().Get("entity_id"); et != "" && id != "" {
		entries, err = h.engine.DB().ListEntityAudit(r.Context(), et, id)
	} else {
		entries, err = h.engine.DB().ListAuditLog(r.Context(), limit)
	}
	if err != nil {
		h.writeError(w, "監査ログの取得に失敗しました", err)
		return
	}
	if entries == nil {
		entries = []*store.AuditEntry{}
	}
	h.jsonOK(w, entries)
}
