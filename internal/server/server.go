// Package server exposes the HTTP API consumed by the DigitLens UI.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"digitlens/internal/app"
	"digitlens/internal/flow"
	"digitlens/internal/otp"
	"digitlens/internal/ratelimit"
	"digitlens/internal/util"
	"digitlens/pkg/domain"
)

const maxImageBytes = 8 << 20

// genericAnalyzeError is the single user-facing message for any
// classification failure; the underlying cause is logged, not surfaced.
const genericAnalyzeError = "Failed to analyze the image. Please try again."

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Optional per-endpoint limiters; nil disables limiting.
	SignupLimiter *ratelimit.FixedWindowLimiter
	LoginLimiter  *ratelimit.FixedWindowLimiter
	ForgotLimiter *ratelimit.FixedWindowLimiter

	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for auth, scans, and history.
type Server struct {
	app           *app.App
	signupLimiter *ratelimit.FixedWindowLimiter
	loginLimiter  *ratelimit.FixedWindowLimiter
	forgotLimiter *ratelimit.FixedWindowLimiter
	trusted       *util.TrustedProxies
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:           cfg.App,
		signupLimiter: cfg.SignupLimiter,
		loginLimiter:  cfg.LoginLimiter,
		forgotLimiter: cfg.ForgotLimiter,
		trusted:       cfg.TrustedProxies,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with shared middleware applied.
func (s *Server) Router() http.Handler {
	var handler http.Handler = s.mux
	handler = util.WithSecurityHeaders(handler)
	handler = util.WithCORS(handler)
	handler = util.WithRequestLog("digitlens", handler)
	handler = util.WithRequestID(handler)
	return handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))
	s.mux.HandleFunc("/auth/password/forgot", s.handleForgotPassword)
	s.mux.HandleFunc("/auth/password/reset", s.handleResetPassword)

	// scans
	s.mux.HandleFunc("/api/scans", s.handleScans)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Session)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, sess)
	})
}

func (s *Server) authorize(r *http.Request) (domain.Session, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.Session{}, false
	}
	return s.app.SessionFromToken(token)
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, token, err := s.app.Signup(req.Name, req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: sess})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: sess})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	count, err := s.app.HistoryCount(sess.Email)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("failed to count scans", "err", err)
		count = 0
	}
	writeJSON(w, http.StatusOK, meResponse{User: sess, ScanCount: count})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.forgotLimiter, "too many reset requests") {
		return
	}
	var req forgotRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeAuthError(w, err)
		return
	}
	next, _ := flow.NextAuthView(flow.ViewForgotEmail, flow.EventCodeSent)
	writeJSON(w, http.StatusOK, flowResponse{Next: next})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req resetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeAuthError(w, err)
		return
	}
	next, _ := flow.NextAuthView(flow.ViewForgotReset, flow.EventResetDone)
	writeJSON(w, http.StatusOK, flowResponse{Next: next})
}

// scan handlers
func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleAnalyze(w, r)
	case http.MethodGet:
		s.handleHistory(w, r)
	default:
		methodNotAllowed(w)
	}
}

// handleAnalyze classifies an uploaded image. Auth is optional: anonymous
// scans work but are not persisted.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	image, mimeType, ok := readImage(w, r)
	if !ok {
		return
	}
	var sess *domain.Session
	if active, found := s.authorize(r); found {
		sess = &active
	}
	result, state, err := s.app.AnalyzeScan(r.Context(), sess, image, mimeType)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("classification failed", "err", err)
		writeJSON(w, http.StatusBadGateway, scanResponse{State: state, Error: genericAnalyzeError})
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{State: state, Result: &result, Saved: sess != nil})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	records := s.app.History(r.Context(), sess.Email)
	writeJSON(w, http.StatusOK, historyResponse{Records: records})
}

// readImage accepts either a multipart upload (field "image") or a JSON
// body carrying base64 image data.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return nil, "", false
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "image file is required")
			return nil, "", false
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read image")
			return nil, "", false
		}
		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "image/png"
		}
		return data, mimeType, true
	}

	var req analyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxImageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, "", false
	}
	if req.ImageData == "" {
		writeError(w, http.StatusBadRequest, "imageData is required")
		return nil, "", false
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "imageData must be base64")
		return nil, "", false
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return data, mimeType, true
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	if limiter.Allow(util.ClientIP(r, s.trusted)) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  domain.Session `json:"user"`
}

type meResponse struct {
	User      domain.Session `json:"user"`
	ScanCount int            `json:"scanCount"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type flowResponse struct {
	Next flow.AuthView `json:"next"`
}

type analyzeRequest struct {
	ImageData string `json:"imageData"`
	MimeType  string `json:"mimeType"`
}

type scanResponse struct {
	State  flow.ScanState         `json:"state"`
	Result *domain.AnalysisResult `json:"result,omitempty"`
	Saved  bool                   `json:"saved"`
	Error  string                 `json:"error,omitempty"`
}

type historyResponse struct {
	Records []domain.ScanRecord `json:"records"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrAccountNotFound), errors.Is(err, otp.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrAllFieldsRequired),
		errors.Is(err, app.ErrPasswordTooShort),
		errors.Is(err, otp.ErrInvalidCode),
		errors.Is(err, otp.ErrExpired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
