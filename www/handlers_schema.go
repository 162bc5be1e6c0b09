package www

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bomdesk/schema"
	"bomdesk/store"
)

type setPrimaryKeyRequest struct {
	TableName  string `json:"tableName"`
	ColumnName string `json:"columnName"`
}

func (h *Handlers) apiSetPrimaryKey(w http.ResponseWriter, r *http.Request) {
	var req setPrimaryKeyRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.SetPrimaryKey(r.Context(), req.TableName, req.ColumnName)
	if err != nil {
		h.writeError(w, "主キーの設定に失敗しました", err)
		return
	}
	h.jsonOK(w, map[string]any{
		"message":  fmt.Sprintf("%s の主キーを %s に設定しました", res.Table, res.Column),
		"table":    res.Table,
		"column":   res.Column,
		"rebuilds": res.Rebuilds,
		"rows":     res.Rows,
	})
}

func (h *Handlers) apiListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.engine.DB().ListTables(r.Context())
	if err != nil {
		h.writeError(w, "テーブル一覧の取得に失敗しました", err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	h.jsonOK(w, tables)
}

type tableDetail struct {
	schema.Table
	Styles []*store.ColumnStyle `json:"styles"`
}

func (h *Handlers) apiGetTable(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	name, err := db.ResolveTable(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		h.writeError(w, "テーブル情報の取得に失敗しました", err)
		return
	}
	tbl, err := schema.Describe(r.Context(), db, name)
	if err != nil {
		h.writeError(w, "テーブル情報の取得に失敗しました", err)
		return
	}
	styles, err := db.ListColumnStyles(r.Context(), name)
	if err != nil {
		h.writeError(w, "列スタイルの取得に失敗しました", err)
		return
	}
	if styles == nil {
		styles = []*store.ColumnStyle{}
	}
	h.jsonOK(w, tableDetail{Table: tbl, Styles: styles})
}
