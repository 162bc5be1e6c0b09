package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bomdesk/store"
)

func (h *Handlers) apiProjectSummary(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.Summary().Get(r.Context(), projectParam(r))
	if err != nil {
		h.writeError(w, "集計の取得に失敗しました", err)
		return
	}
	h.jsonOK(w, t)
}

func (h *Handlers) apiListParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.engine.DB().ListParts(r.Context(), projectParam(r))
	if err != nil {
		h.writeError(w, "部品一覧の取得に失敗しました", err)
		return
	}
	if parts == nil {
		parts = []*store.Part{}
	}
	h.jsonOK(w, parts)
}

func (h *Handlers) apiCreatePart(w http.ResponseWriter, r *http.Request) {
	var p store.Part
	if !h.decodeJSON(w, r, &p) {
		return
	}
	p.ProjectID = projectParam(r)
	// The unit weight is derived from materials.
	p.UnitWeight = 0
	if err := h.engine.DB().CreatePart(r.Context(), &p); err != nil {
		h.writeError(w, "部品の登録に失敗しました", err)
		return
	}
	h.engine.NotifyBOMChanged(r.Context(), p.ProjectID, "part", p.ID, "created")
	h.jsonCreated(w, p)
}

type partDetail struct {
	*store.Part
	Materials []*store.Material `json:"materials"`
}

func (h *Handlers) apiGetPart(w http.ResponseWriter, r *http.Request) {
	project := projectParam(r)
	p, err := h.engine.DB().GetPart(r.Context(), project, chi.URLParam(r, "partID"))
	if err != nil {
		h.writeError(w, "部品の取得に失敗しました", err)
		return
	}
	mats, err := h.engine.DB().ListMaterials(r.Context(), project, p.ID)
	if err != nil {
		h.writeError(w, "部材の取得に失敗しました", err)
		return
	}
	if mats == nil {
		mats = []*store.Material{}
	}
	h.jsonOK(w, partDetail{Part: p, Materials: mats})
}

func (h *Handlers) apiDeletePart(w http.ResponseWriter, r *http.Request) {
	project := projectParam(r)
	partID := chi.URLParam(r, "partID")
	if err := h.engine.DB().DeletePart(r.Context(), project, partID); err != nil {
		h.writeError(w, "部品の削除に失敗しました", err)
		return
	}
	h.engine.NotifyBOMChanged(r.Context(), project, "part", partID, "deleted")
	h.jsonOK(w, map[string]any{"message": "部品を削除しました"})
}

func (h *Handlers) apiCreateMaterial(w http.ResponseWriter, r *http.Request) {
	project := projectParam(r)
	partID := chi.URLParam(r, "partID")
	if _, err := h.engine.DB().GetPart(r.Context(), project, partID); err != nil {
		h.writeError(w, "部材の登録に失敗しました", err)
		return
	}

	var m store.Material
	if !h.decodeJSON(w, r, &m) {
		return
	}
	m.ProjectID = project
	m.PartID = partID
	if err := h.engine.DB().CreateMaterial(r.Context(), &m); err != nil {
		h.writeError(w, "部材の登録に失敗しました", err)
		return
	}
	h.engine.NotifyBOMChanged(r.Context(), project, "material", m.ID, "created")
	h.jsonCreated(w, m)
}

func (h *Handlers) apiDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	project := projectParam(r)
	buzaiID := chi.URLParam(r, "buzaiID")
	if err := h.engine.DB().DeleteMaterial(r.Context(), project, buzaiID); err != nil {
		h.writeError(w, "部材の削除に失敗しました", err)
		return
	}
	h.engine.NotifyBOMChanged(r.Context(), project, "material", buzaiID, "deleted")
	h.jsonOK(w, map[string]any{"message": "部材を削除しました"})
}
