package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/service"
)

type registerRequest struct {
	Login      string `json:"login" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	ReferrerID string `json:"referrer_id" validate:"omitempty,uuid"`
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type verifyLoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type twoFactorPendingResponse struct {
	TwoFactorRequired bool `json:"two_factor_required"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	in := service.RegisterInput{Login: req.Login, Password: req.Password}
	if req.ReferrerID != "" {
		id := uuid.MustParse(req.ReferrerID)
		in.ReferrerID = &id
	}

	u, err := h.service.RegisterUser(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authorize(w, r, u)
}

// Login выполняет аутентификацию пользователя. При включённой 2FA отвечает 202 и ждёт код.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrTwoFactorRequired) {
			writeJSON(w, http.StatusAccepted, twoFactorPendingResponse{TwoFactorRequired: true})
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.authorize(w, r, u)
}

// VerifyLogin завершает вход кодом 2FA.
func (h *Handler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req verifyLoginRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.service.VerifyLogin(r.Context(), req.Login, req.Password, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authorize(w, r, u)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, u *model.User) {
	token, err := h.authMiddleware.SetAuthCookie(w, u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: newUserResponse(u)})
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

type sendCodeRequest struct {
	Purpose string `json:"purpose" validate:"required,twofa_purpose"`
}

type verifyCodeRequest struct {
	Purpose string `json:"purpose" validate:"required,twofa_purpose"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
}

// SendTwoFactorCode отправляет код для включения или отключения 2FA.
func (h *Handler) SendTwoFactorCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req sendCodeRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.SendCode(r.Context(), userID, model.TwoFactorPurpose(req.Purpose)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// VerifyTwoFactorCode проверяет код и включает или отключает 2FA.
func (h *Handler) VerifyTwoFactorCode(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req verifyCodeRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.VerifyCode(r.Context(), userID, model.TwoFactorPurpose(req.Purpose), req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
