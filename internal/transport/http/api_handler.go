package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/pslgod1/DigitalTest/internal/app"
	"github.com/pslgod1/DigitalTest/internal/auth"
	"github.com/pslgod1/DigitalTest/internal/domain"
)

const sessionCookie = "jwtToken"

// APIHandler exposes the REST surface: auth flows, test catalog, and
// attempt lifecycle.
type APIHandler struct {
	verification *app.VerificationService
	attempts     *app.AttemptService
	tests        *app.TestService
	users        app.UserStore
	tokens       *auth.TokenManager
}

func NewAPIHandler(
	verification *app.VerificationService,
	attempts *app.AttemptService,
	tests *app.TestService,
	users app.UserStore,
	tokens *auth.TokenManager,
) *APIHandler {
	return &APIHandler{
		verification: verification,
		attempts:     attempts,
		tests:        tests,
		users:        users,
		tokens:       tokens,
	}
}

// Register mounts all routes on the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/register/verify", h.handleVerifyRegistration)
	mux.HandleFunc("POST /api/auth/register/resend", h.handleResendCode)
	mux.HandleFunc("POST /api/auth/password/forgot", h.handleForgotPassword)
	mux.HandleFunc("POST /api/auth/password/verify", h.handleVerifyResetCode)
	mux.HandleFunc("POST /api/auth/password/reset", h.handleResetPassword)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)

	mux.HandleFunc("GET /api/tests", h.withUser(h.handleListTests))
	mux.HandleFunc("GET /api/tests/{id}", h.withUser(h.handleGetTest))
	mux.HandleFunc("POST /api/admin/tests", h.withAdmin(h.handleCreateTest))
	mux.HandleFunc("DELETE /api/admin/tests/{id}", h.withAdmin(h.handleDeleteTest))
	mux.HandleFunc("GET /api/admin/tests/{id}/attempts", h.withAdmin(h.handleTestAttempts))
	mux.HandleFunc("GET /api/admin/users", h.withAdmin(h.handleListUsers))
	mux.HandleFunc("POST /api/admin/users/role", h.withAdmin(h.handleUpdateRole))

	mux.HandleFunc("POST /api/attempts", h.withUser(h.handleCreateAttempt))
	mux.HandleFunc("GET /api/attempts", h.withUser(h.handleListAttempts))
	mux.HandleFunc("GET /api/attempts/{id}", h.withUser(h.handleGetAttempt))
	mux.HandleFunc("POST /api/attempts/{id}/answers", h.withUser(h.handleRecordAnswer))
	mux.HandleFunc("POST /api/attempts/{id}/complete", h.withUser(h.handleCompleteAttempt))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user domain.User)

// withUser authenticates the session cookie and resolves the account.
func (h *APIHandler) withUser(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		claims, err := h.tokens.Parse(cookie.Value)
		if err != nil {
			writeError(w, err)
			return
		}
		user, err := h.users.ByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				err = domain.ErrUnauthorized
			}
			writeError(w, err)
			return
		}
		next(w, r, user)
	}
}

func (h *APIHandler) withAdmin(next authedHandler) http.HandlerFunc {
	return h.withUser(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if user.Role != domain.RoleAdmin {
			writeError(w, domain.ErrForbidden)
			return
		}
		next(w, r, user)
	})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *APIHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		badRequest(w, "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := h.verification.StartRegistration(r.Context(), domain.RegistrationProfile{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"registrationId": id})
}

type verifyRequest struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

func (h *APIHandler) handleVerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.verification.VerifyRegistration(r.Context(), req.ID, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setSession(w, user)
	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) handleResendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.verification.ResendRegistrationCode(r.Context(), req.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, err := h.verification.StartPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"resetId": id})
}

func (h *APIHandler) handleVerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.verification.VerifyResetCode(r.Context(), req.ID, req.Code); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Password == "" {
		badRequest(w, "password is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	email, err := h.verification.ConsumePasswordReset(r.Context(), req.ID, hash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": email})
}

func (h *APIHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	user, err := h.users.ByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			err = domain.ErrUnauthorized
		}
		writeError(w, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	h.setSession(w, user)
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) setSession(w http.ResponseWriter, user domain.User) {
	token, err := h.tokens.Issue(user)
	if err != nil {
		log.Printf("issue session token for %s: %v", user.Email, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TokenTTL() / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *APIHandler) handleListTests(w http.ResponseWriter, r *http.Request, _ domain.User) {
	tests, err := h.tests.ListTests(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *APIHandler) handleGetTest(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	test, err := h.tests.GetTest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (h *APIHandler) handleCreateTest(w http.ResponseWriter, r *http.Request, admin domain.User) {
	var test domain.Test
	if !decode(w, r, &test) {
		return
	}
	if test.Title == "" {
		badRequest(w, "title is required")
		return
	}
	created, err := h.tests.CreateTest(r.Context(), admin.ID, test)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *APIHandler) handleDeleteTest(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.tests.DeleteTest(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) handleTestAttempts(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	attempts, err := h.attempts.ListAttemptsForTest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *APIHandler) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	role := domain.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = domain.RoleAdmin
	}
	users, err := h.users.ListByRole(r.Context(), role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *APIHandler) handleUpdateRole(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var req struct {
		Email string      `json:"email"`
		Role  domain.Role `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Role != domain.RoleUser && req.Role != domain.RoleAdmin {
		badRequest(w, "unknown role")
		return
	}
	user, err := h.users.UpdateRole(r.Context(), req.Email, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) handleCreateAttempt(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		TestID int64 `json:"testId"`
	}
	if !decode(w, r, &req) {
		return
	}
	attempt, err := h.attempts.CreateAttempt(r.Context(), user.ID, req.TestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (h *APIHandler) handleListAttempts(w http.ResponseWriter, r *http.Request, user domain.User) {
	attempts, err := h.attempts.ListAttemptsForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *APIHandler) handleGetAttempt(w http.ResponseWriter, r *http.Request, user domain.User) {
	attempt, ok := h.ownAttempt(w, r, user)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (h *APIHandler) handleRecordAnswer(w http.ResponseWriter, r *http.Request, user domain.User) {
	attempt, ok := h.ownAttempt(w, r, user)
	if !ok {
		return
	}

	var req struct {
		QuestionID    int64 `json:"questionId"`
		SelectedIndex *int  `json:"selectedIndex"`
	}
	if !decode(w, r, &req) {
		return
	}
	rec, err := h.attempts.RecordAnswer(r.Context(), attempt.ID, req.QuestionID, req.SelectedIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *APIHandler) handleCompleteAttempt(w http.ResponseWriter, r *http.Request, user domain.User) {
	attempt, ok := h.ownAttempt(w, r, user)
	if !ok {
		return
	}
	completed, err := h.attempts.CompleteAttempt(r.Context(), attempt.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

// ownAttempt loads the attempt from the path and checks it belongs to the
// caller. Admins may inspect any attempt.
func (h *APIHandler) ownAttempt(w http.ResponseWriter, r *http.Request, user domain.User) (domain.TestAttempt, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return domain.TestAttempt{}, false
	}
	attempt, err := h.attempts.FindAttempt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return domain.TestAttempt{}, false
	}
	if attempt.UserID != user.ID && user.Role != domain.RoleAdmin {
		writeError(w, domain.ErrForbidden)
		return domain.TestAttempt{}, false
	}
	return attempt, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps domain sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrRegistrationNotFound),
		errors.Is(err, domain.ErrResetNotFound),
		errors.Is(err, domain.ErrTestNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrAttemptNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCodeExpired):
		status = http.StatusGone
	case errors.Is(err, domain.ErrCodeMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrAttemptCompleted),
		errors.Is(err, domain.ErrAlreadyAnswered):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
