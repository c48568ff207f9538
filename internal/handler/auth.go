package handler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/service"
)

const oauthStateCookie = "oauth_state"

// GitHubAuthenticator is the part of *auth.GitHubProvider the handler uses.
type GitHubAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler serves /api/auth: registration, login, token refresh,
// logout, email confirmation and GitHub sign-in.
//
// HANDLER RESPONSIBILITIES:
//   - parse the request (JSON, form, path, bearer header)
//   - call AuthService
//   - write the JSON response
//
// No auth rule lives here; they are all in service.AuthService.
type AuthHandler struct {
	auth    *service.AuthService
	github  GitHubAuthenticator // nil when GitHub sign-in is not configured
	baseURL string              // public address used in confirmation links
	secure  bool                // set Secure on cookies (production)
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(svc *service.AuthService, github GitHubAuthenticator, baseURL string, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    svc,
		github:  github,
		baseURL: baseURL,
		secure:  secureCookies,
		logger:  logger,
	}
}

// HandleSignup registers a new account.
//
// HTTP: POST /api/auth/signup
// REQUEST BODY: {"username": "alice", "email": "alice@example.com", "password": "secret"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in model.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Signup(r.Context(), in, h.baseURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// loginRequest mirrors the OAuth2 password form: "username" carries the email.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin exchanges email and password for a token pair.
//
// HTTP: POST /api/auth/login
// Accepts both application/x-www-form-urlencoded (OAuth2 password flow
// clients) and JSON.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := r.ParseForm(); err != nil {
			writeError(w, apperror.ValidationFailed("body", "Invalid form body"))
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, apperror.ValidationFailed("username", "username and password are required"))
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleRefresh rotates the token pair.
//
// HTTP: GET /api/auth/refresh_token
// Auth: "Authorization: Bearer <refresh token>"
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := auth.BearerToken(r)
	if err != nil {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return
	}

	pair, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleLogout revokes the refresh token of the signed-in user.
//
// HTTP: POST /api/auth/logout
// Auth: Required
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.auth.Logout(r.Context(), user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, "Successfully logged out")
}

// HandleConfirmedEmail is the target of the link in the confirmation email.
//
// HTTP: GET /api/auth/confirmed_email/{token}
func (h *AuthHandler) HandleConfirmedEmail(w http.ResponseWriter, r *http.Request) {
	msg, err := h.auth.ConfirmEmail(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, msg)
}

type requestEmailRequest struct {
	Email string `json:"email"`
}

// HandleRequestEmail re-sends the confirmation email.
//
// HTTP: POST /api/auth/request_email
// REQUEST BODY: {"email": "alice@example.com"}
func (h *AuthHandler) HandleRequestEmail(w http.ResponseWriter, r *http.Request) {
	var req requestEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.auth.RequestEmail(r.Context(), req.Email, h.baseURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, msg)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /api/auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match, which
// proves this server started the flow.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.Unavailable("GitHub sign-in is not configured"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/github",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow and returns a token pair.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the GitHub profile and verified email
//  3. Find or create the account and issue tokens
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.Unavailable("GitHub sign-in is not configured"))
		return
	}

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/api/auth/github",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		writeError(w, apperror.Unauthorized("GitHub authorization was denied"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	// --- Step 2: Exchange code for the GitHub profile ---
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Authentication failed",
		})
		return
	}

	// --- Step 3: Sign in ---
	pair, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
