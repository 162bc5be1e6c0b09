package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bomdesk/store"
)

func (h *Handlers) apiRecomputePartWeights(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.RecomputePartWeights(r.Context(), projectParam(r))
	if err != nil {
		h.writeError(w, "部品単位重量の更新に失敗しました", err)
		return
	}
	h.jsonOK(w, map[string]any{
		"message":          "部品単位重量を更新しました",
		"updatedCount":     res.UpdatedPartCount,
		"updatedUnitCount": res.UpdatedUnitCount,
	})
}

func (h *Handlers) apiSyncUnregistered(w http.ResponseWriter, r *http.Request) {
	project := projectParam(r)
	if project == "" {
		h.writeError(w, "未登録梱包単位の同期に失敗しました", &store.ValidationError{Field: "projectNumber", Reason: "required"})
		return
	}
	res, err := h.engine.SyncUnregisteredUnits(r.Context(), project)
	if err != nil {
		h.writeError(w, "未登録梱包単位の同期に失敗しました", err)
		return
	}
	h.jsonOK(w, map[string]any{
		"message":            "未登録梱包単位を同期しました",
		"syncedCount":        res.SyncedCount,
		"updatedWeightCount": res.UpdatedWeightCount,
		"skippedCount":       res.SkippedCount,
	})
}

type listMakeRequest struct {
	Units []string `json:"units"`
}

func (h *Handlers) apiCreatePackagingList(w http.ResponseWriter, r *http.Request) {
	var req listMakeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Units) == 0 {
		h.writeError(w, "梱包単位が選択されていません", &store.ValidationError{Field: "units", Reason: "required"})
		return
	}
	res, err := h.engine.CreatePackagingList(r.Context(), projectParam(r), req.Units)
	if err != nil {
		h.writeError(w, "梱包リストの作成に失敗しました", err)
		return
	}
	h.jsonOK(w, map[string]any{
		"success":      true,
		"konpoId":      res.KonpoID,
		"updatedCount": res.UpdatedCount,
	})
}

func (h *Handlers) apiRefreshPartInfo(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.RefreshPartInfoOnUnits(r.Context(), projectParam(r))
	if err != nil {
		h.writeError(w, "部品情報の反映に失敗しました", err)
		return
	}
	h.jsonOK(w, map[string]any{
		"message":      "部品情報を梱包単位に反映しました",
		"updatedCount": res.UpdatedCount,
		"skippedCount": res.SkippedCount,
	})
}

func (h *Handlers) apiListUnits(w http.ResponseWriter, r *http.Request) {
	unassigned := r.URL.Query().Get("unassigned") == "1"
	units, err := h.engine.DB().ListUnits(r.Context(), projectParam(r), unassigned)
	if err != nil {
		h.writeError(w, "梱包単位の取得に失敗しました", err)
		return
	}
	if units == nil {
		units = []*store.KonpoUnit{}
	}
	h.jsonOK(w, units)
}

func (h *Handlers) apiCreateUnit(w http.ResponseWriter, r *http.Request) {
	var u store.KonpoUnit
	if !h.decodeJSON(w, r, &u) {
		return
	}
	u.ProjectID = projectParam(r)
	// Units are assigned only through list creation.
	u.ListID = ""
	if err := h.engine.DB().CreateUnit(r.Context(), &u); err != nil {
		h.writeError(w, "梱包単位の登録に失敗しました", err)
		return
	}
	h.engine.NotifyBOMChanged(r.Context(), u.ProjectID, "unit", u.ID, "created")
	h.jsonCreated(w, u)
}

func (h *Handlers) apiListPackagingLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.engine.DB().ListKonpoLists(r.Context(), projectParam(r))
	if err != nil {
		h.writeError(w, "梱包リストの取得に失敗しました", err)
		return
	}
	if lists == nil {
		lists = []*store.KonpoList{}
	}
	h.jsonOK(w, lists)
}

func (h *Handlers) apiGetPackagingList(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.DB().GetKonpoList(r.Context(), projectParam(r), chi.URLParam(r, "konpoID"))
	if err != nil {
		h.writeError(w, "梱包リストの取得に失敗しました", err)
		return
	}
	h.jsonOK(w, list)
}

func (h *Handlers) apiDeletePackagingList(w http.ResponseWriter, r *http.Request) {
	listID := chi.URLParam(r, "konpoID")
	if err := h.engine.DeletePackagingList(r.Context(), projectParam(r), listID); err != nil {
		h.writeError(w, "梱包リストの削除に失敗しました", err)
		return
	}
	h.jsonOK(w, map[string]any{"message": "梱包リストを削除しました", "konpoId": listID})
}
