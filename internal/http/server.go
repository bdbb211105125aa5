package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kindertrack/auth-identity/internal/auth"
	"kindertrack/auth-identity/internal/config"
	"kindertrack/auth-identity/internal/guard"
	"kindertrack/auth-identity/internal/limiter"
	"kindertrack/auth-identity/internal/model"
	"kindertrack/auth-identity/internal/repository"
	"kindertrack/auth-identity/internal/service"
)

// Store is what the handlers need beyond the auth orchestrator: relation
// lookups for the gates, the guarded resource reads, and user admin writes.
type Store interface {
	guard.RelationStore
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	UpdateContactInfo(ctx context.Context, userID string, phone, address *string) (model.User, error)
	SoftDeleteUser(ctx context.Context, userID string) (bool, error)
	GetClass(ctx context.Context, classID string) (model.Class, error)
	UpdateClassName(ctx context.Context, classID, name string) (model.Class, error)
	GetStudent(ctx context.Context, studentID string) (model.Student, error)
}

type Server struct {
	cfg     config.Config
	store   Store
	auth    *service.Auth
	limiter *limiter.Login
	logger  *zap.Logger
}

func NewServer(cfg config.Config, store Store, authService *service.Auth, loginLimiter *limiter.Login, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		auth:    authService,
		limiter: loginLimiter,
		logger:  logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
		r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

		r.With(s.authMiddleware).Get("/classes/{classId}", s.handleGetClass)
		r.With(s.authMiddleware).Patch("/classes/{classId}", s.handlePatchClass)
		r.With(s.authMiddleware).Get("/students/{studentId}", s.handleGetStudent)

		r.With(s.authMiddleware).Patch("/users/{userID}", s.handleUpdateContact)
		r.With(s.authMiddleware).Delete("/users/{userID}", s.handleDeleteUser)
	})

	return r
}

type userSummary struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Role      string  `json:"role"`
	SchoolID  *string `json:"schoolId,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role.String(),
		SchoolID:  user.SchoolID,
		Phone:     user.Phone,
		Address:   user.Address,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type registerRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Role      string  `json:"role"`
	SchoolID  *string `json:"schoolId,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" || req.Role == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	user, err := s.auth.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		SchoolID:  req.SchoolID,
		Phone:     req.Phone,
		Address:   req.Address,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapUserSummary(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	if err := s.limiter.Allow(r.Context(), req.Email, clientIP(r, s.cfg.TrustProxyIP)); err != nil {
		if errors.Is(err, limiter.ErrRateLimited) {
			loginAttempts.WithLabelValues("throttled").Inc()
			writeError(w, http.StatusTooManyRequests, limiter.ErrRateLimited.Error())
			return
		}
		// The throttle is advisory; a broken redis must not block logins.
		s.logger.Warn("login limiter unavailable", zap.Error(err))
	}

	pair, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		loginAttempts.WithLabelValues("failure").Inc()
		s.writeServiceError(w, err)
		return
	}

	loginAttempts.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		refreshAttempts.WithLabelValues("failure").Inc()
		s.writeServiceError(w, err)
		return
	}

	refreshAttempts.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := s.auth.Logout(r.Context(), claims.UserID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	user, err := s.auth.WhoAmI(r.Context(), claims.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

type classResponse struct {
	ID       string `json:"id"`
	SchoolID string `json:"schoolId"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

func mapClassResponse(class model.Class) classResponse {
	return classResponse{ID: class.ID, SchoolID: class.SchoolID, Name: class.Name, Capacity: class.Capacity}
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	classID := chi.URLParam(r, "classId")

	if err := guard.RequireRole(claims, model.RoleAdmin, model.RoleDirector, model.RoleTeacher, model.RoleParent); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}

	class, err := s.store.GetClass(r.Context(), classID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class not found")
			return
		}
		s.internalError(w, err)
		return
	}

	if err := guard.RequireSchoolAccess(claims, class.SchoolID); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}
	if err := guard.RequireClassRead(r.Context(), s.store, claims, classID); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}

	writeJSON(w, http.StatusOK, mapClassResponse(class))
}

type patchClassRequest struct {
	Name string `json:"name"`
}

func (s *Server) handlePatchClass(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	classID := chi.URLParam(r, "classId")

	if err := guard.RequireRole(claims, model.RoleAdmin, model.RoleDirector, model.RoleTeacher); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}

	var req patchClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	class, err := s.store.GetClass(r.Context(), classID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class not found")
			return
		}
		s.internalError(w, err)
		return
	}

	if err := guard.RequireSchoolAccess(claims, class.SchoolID); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}
	if err := guard.RequireClassWrite(r.Context(), s.store, claims, classID); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}

	updated, err := s.store.UpdateClassName(r.Context(), classID, req.Name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class not found")
			return
		}
		s.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapClassResponse(updated))
}

type studentResponse struct {
	ID        string `json:"id"`
	SchoolID  string `json:"schoolId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	studentID := chi.URLParam(r, "studentId")

	if err := guard.RequireRole(claims, model.RoleAdmin, model.RoleDirector, model.RoleTeacher, model.RoleParent); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}

	student, err := s.store.GetStudent(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		s.internalError(w, err)
		return
	}

	if err := guard.RequireSchoolAccess(claims, student.SchoolID); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}
	if err := guard.RequireStudentRead(r.Context(), s.store, claims, studentID); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}

	writeJSON(w, http.StatusOK, studentResponse{
		ID:        student.ID,
		SchoolID:  student.SchoolID,
		FirstName: student.FirstName,
		LastName:  student.LastName,
	})
}

type updateContactRequest struct {
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if claims.UserID != userID {
		if err := s.requireUserAdmin(r.Context(), claims, userID); err != nil {
			s.writeGuardError(w, claims, err)
			return
		}
	}

	var req updateContactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.store.UpdateContactInfo(r.Context(), userID, req.Phone, req.Address)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if err := s.requireUserAdmin(r.Context(), claims, userID); err != nil {
		s.writeGuardError(w, claims, err)
		return
	}

	deleted, err := s.store.SoftDeleteUser(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// requireUserAdmin allows admins to manage any account and directors to manage
// school-scoped accounts within their own school.
func (s *Server) requireUserAdmin(ctx context.Context, claims *auth.Claims, targetID string) error {
	if claims.Role == model.RoleAdmin {
		return nil
	}
	if err := guard.RequireRole(claims, model.RoleDirector); err != nil {
		return err
	}
	target, err := s.store.GetUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return guard.ErrSchoolMismatch
		}
		return err
	}
	if target.SchoolID == nil {
		return guard.ErrSchoolMismatch
	}
	return guard.RequireSchoolAccess(claims, *target.SchoolID)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeUnauthenticated(w, "missing or invalid authorization")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			s.logger.Warn("token validation failed", zap.String("kind", auth.FailureKind(err)))
			writeUnauthenticated(w, "invalid or expired access token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRefreshToken),
		errors.Is(err, service.ErrRefreshExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrSchoolRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSchoolNotFound),
		errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.internalError(w, err)
	}
}

func (s *Server) writeGuardError(w http.ResponseWriter, claims *auth.Claims, err error) {
	if guard.Forbidden(err) {
		s.logger.Warn("authorization denied",
			zap.String("user_id", claims.UserID),
			zap.String("role", claims.Role.String()),
			zap.String("reason", err.Error()))
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	s.internalError(w, err)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "server error")
}

func writeUnauthenticated(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, message)
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// clientIP resolves the address the login throttle keys on. Forwarded
// headers are client-controlled, so they count only when the deployment
// declares a trusted proxy in front; otherwise the peer address wins.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			return strings.TrimSpace(parts[0])
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
