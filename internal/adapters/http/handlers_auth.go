package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/adapters/session"
	"github.com/stackapp/auth-service/internal/application"
)

func (h *Handler) requestOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "request_otp", err)
		return
	}

	res, err := h.service.RequestOTP(r.Context(), req.Email)
	if err != nil {
		writeMappedError(r.Context(), w, "request_otp", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message":   "OTP sent to email",
		"expiresAt": res.ExpiresAt,
	})
}

func (h *Handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "resend_otp", err)
		return
	}

	res, err := h.service.ResendOTP(r.Context(), req.Email)
	if err != nil {
		writeMappedError(r.Context(), w, "resend_otp", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message":   "OTP resent",
		"expiresAt": res.ExpiresAt,
	})
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "verify_otp", err)
		return
	}

	if err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP); err != nil {
		writeMappedError(r.Context(), w, "verify_otp", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"message":  "OTP verified successfully",
		"verified": true,
	})
}

func (h *Handler) completeSignup(w http.ResponseWriter, r *http.Request) {
	var req application.CompleteSignupRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "complete_signup", err)
		return
	}

	res, err := h.service.CompleteSignup(r.Context(), req, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		writeMappedError(r.Context(), w, "complete_signup", err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"message": "Account created successfully",
		"token":   res.Token,
		"user":    res.User,
	})
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req application.SignupRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "signup", err)
		return
	}

	res, err := h.service.Signup(r.Context(), req, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		writeMappedError(r.Context(), w, "signup", err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"message": "Account created successfully",
		"token":   res.Token,
		"user":    res.User,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "login", err)
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = readIP(r)
	}
	if req.UserAgent == "" {
		req.UserAgent = r.UserAgent()
	}

	res, err := h.service.Login(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"token": res.Token,
		"user":  res.User,
	})
}

// logout clears the delegated session when the session layer is wired. Bearer
// tokens are stateless, so there is nothing else to revoke here.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sess := session.FromContext(r.Context()); sess != nil {
		if err := sess.Clear(r.Context()); err != nil {
			writeMappedError(r.Context(), w, "logout", err)
			return
		}
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}

	user, err := h.localUser(r, identity)
	if err != nil {
		writeMappedError(r.Context(), w, "me", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) loginHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}

	userID := identity.UserID
	if userID == uuid.Nil {
		user, err := h.localUser(r, identity)
		if err != nil {
			writeMappedError(r.Context(), w, "login_history", err)
			return
		}
		userID = user.ID
	}

	query := application.LoginHistoryQuery{
		Page:  parseIntDefault(r.URL.Query().Get("page"), 1),
		Limit: parseIntDefault(r.URL.Query().Get("limit"), 20),
	}
	attempts, err := h.service.ListLoginHistory(r.Context(), userID, query)
	if err != nil {
		writeMappedError(r.Context(), w, "login_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// delegatedSession reports what the delegated provider knows about the
// caller. Bearer tokens intentionally do not satisfy this route.
func (h *Handler) delegatedSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"subject":       identity.Subject,
		"email":         identity.Email,
		"walletAddress": identity.WalletAddress,
		"extra":         identity.Extra,
	})
}

func (h *Handler) showWallet(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"walletAddress": strings.TrimSpace(chi.URLParam(r, "wallet_address")),
		"email":         identity.Email,
	})
}

// localUser maps the resolved identity onto its local account. Bearer
// identities carry the user ID directly; delegated identities are looked up
// by their provider email.
func (h *Handler) localUser(r *http.Request, identity ResolvedIdentity) (application.UserSummary, error) {
	if identity.UserID != uuid.Nil {
		return h.service.GetUser(r.Context(), identity.UserID)
	}
	return h.service.GetUserByEmail(r.Context(), identity.Email)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}
