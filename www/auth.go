package www

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"bomdesk/engine"
	"bomdesk/store"
)

const sessionName = "bomdesk-session"

func newSessionStore(secret string) *sessions.CookieStore {
	if secret == "" {
		secret = "bomdesk-default-secret-change-me"
	}
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.HttpOnly = true
	s.Options.Secure = false // served on the plant LAN over plain HTTP
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (h *Handlers) isAuthenticated(r *http.Request) bool {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return false
	}
	auth, ok := session.Values["authenticated"].(bool)
	return ok && auth
}

// requireAuth rejects anonymous requests and puts the session user into the
// request context for audit and events.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.isAuthenticated(r) {
			h.jsonError(w, "ログインが必要です", http.StatusUnauthorized)
			return
		}
		ctx := engine.WithActor(r.Context(), h.getUsername(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) getUsername(r *http.Request) string {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return ""
	}
	username, _ := session.Values["username"].(string)
	return username
}

// ensureDefaultAdmin creates admin/admin on an empty user table.
func (h *Handlers) ensureDefaultAdmin(db *store.DB) {
	ctx := context.Background()
	exists, err := db.AdminUserExists(ctx)
	if err != nil || exists {
		return
	}
	hash, err := hashPassword("admin")
	if err != nil {
		return
	}
	if err := db.CreateAdminUser(ctx, "admin", hash); err != nil {
		h.log.Warn("create default admin", zap.Error(err))
		return
	}
	h.log.Info("default admin user created", zap.String("username", "admin"))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.engine.DB().GetAdminUser(r.Context(), req.Username)
	if err != nil || !checkPassword(user.PasswordHash, req.Password) {
		h.jsonError(w, "ユーザー名またはパスワードが正しくありません", http.StatusUnauthorized)
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["username"] = user.Username
	if err := session.Save(r, w); err != nil {
		h.log.Error("session save", zap.Error(err))
		h.jsonError(w, "セッションの保存に失敗しました", http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, map[string]any{"success": true, "username": user.Username})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Values["username"] = ""
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		h.log.Warn("session clear", zap.Error(err))
	}
	h.jsonOK(w, map[string]any{"success": true})
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handlers) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		h.jsonError(w, "新しいパスワードを入力してください", http.StatusBadRequest)
		return
	}

	username := engine.ActorFrom(r.Context())
	user, err := h.engine.DB().GetAdminUser(r.Context(), username)
	if err != nil {
		h.writeError(w, "ユーザー情報の取得に失敗しました", err)
		return
	}
	if !checkPassword(user.PasswordHash, req.CurrentPassword) {
		h.jsonError(w, "現在のパスワードが正しくありません", http.StatusUnauthorized)
		return
	}
	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		h.jsonError(w, "パスワードの変更に失敗しました", http.StatusInternalServerError)
		return
	}
	if err := h.engine.DB().UpdateAdminPassword(r.Context(), username, hash); err != nil {
		h.writeError(w, "パスワードの変更に失敗しました", err)
		return
	}
	if err := h.engine.DB().AppendAudit(r.Context(), "user", username, "password_changed", "", "", username); err != nil {
		h.log.Warn("audit password change", zap.Error(err))
	}
	h.jsonOK(w, map[string]any{"message": "パスワードを変更しました"})
}
