package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmchat/internal/auth"
	"github.com/dmchat/internal/blob"
	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/middleware"
	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/repository"
)

type AuthHandler struct {
	users       UserStore
	tokens      *auth.Tokens
	images      ImageUploader
	maxBodySize int64
}

func NewAuthHandler(users UserStore, tokens *auth.Tokens, images ImageUploader, maxBodySize int64) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, images: images, maxBodySize: maxBodySize}
}

type authResponse struct {
	Success  bool             `json:"success"`
	UserData model.UserPublic `json:"userData"`
	Token    string           `json:"token,omitempty"`
	Message  string           `json:"message,omitempty"`
}

type signupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

// Signup — POST /api/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, 1<<16, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing details")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		logger.Errorf("signup hash: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: hash,
		Bio:          req.Bio,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "account already exists")
			return
		}
		logger.Errorf("signup create: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	h.respondWithToken(w, http.StatusCreated, u, "account created successfully")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login — POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, 1<<16, &req) {
		return
	}
	u, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		logger.Errorf("login get user: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.respondWithToken(w, http.StatusOK, u, "login successful")
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, status int, u *model.User, msg string) {
	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		logger.Errorf("issue token user=%s: %v", u.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, status, authResponse{Success: true, UserData: u.ToPublic(), Token: token, Message: msg})
}

// Check — GET /api/auth/check: кто я по токену.
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	if err != nil {
		logger.Errorf("auth check: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, UserData: u.ToPublic()})
}

type updateProfileRequest struct {
	FullName   string `json:"fullName"`
	Bio        string `json:"bio"`
	ProfilePic string `json:"profilePic"`
}

// UpdateProfile — PUT /api/auth/update-profile. profilePic — data URL новой картинки (необязательно).
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req updateProfileRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	if name := strings.TrimSpace(req.FullName); name != "" {
		u.FullName = name
	}
	u.Bio = req.Bio
	if req.ProfilePic != "" {
		url, err := h.images.UploadDataURL(r.Context(), req.ProfilePic)
		if err != nil {
			writeImageError(w, err)
			return
		}
		u.ProfilePic = url
	}
	if err := h.users.UpdateProfile(r.Context(), userID, u.FullName, u.Bio, u.ProfilePic); err != nil {
		logger.Errorf("update profile user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Success: true, UserData: u.ToPublic()})
}

func writeImageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blob.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
	case errors.Is(err, blob.ErrNotImage):
		writeError(w, http.StatusBadRequest, "unsupported image")
	default:
		logger.Errorf("image upload: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to upload image")
	}
}
