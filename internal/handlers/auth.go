package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/messageapi/apiserver/internal/logging"
	"github.com/messageapi/apiserver/internal/services"
	"github.com/messageapi/apiserver/types"
)

// AuthHandler provides account registration.
type AuthHandler struct {
	userService *services.UserService
	logger      logging.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, logger logging.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		logger:      logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, userService *services.UserService, logger logging.Logger) {
	handler := NewAuthHandler(userService, logger)

	r.Post("/register", handler.Register)
}

// Register creates a new user account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.userService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info(r.Context(), "user registered", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "user registered successfully"})
}

// authenticate checks login credentials carried in a request body. On failure
// it writes the response and returns false.
func authenticate(
	w http.ResponseWriter,
	r *http.Request,
	userService *services.UserService,
	logger logging.Logger,
	creds Credentials,
) (types.User, bool) {
	user, err := userService.Verify(r.Context(), creds.Login, creds.Password)
	if err != nil {
		writeServiceError(w, r, logger, err)
		return types.User{}, false
	}
	return user, true
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Credentials identify the caller on every message endpoint.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (c Credentials) missing() bool {
	return strings.TrimSpace(c.Login) == "" || c.Password == ""
}
