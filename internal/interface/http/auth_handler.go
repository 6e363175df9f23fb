package handlers

import (
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/coherency-auth/internal/application"
	"github.com/oksasatya/coherency-auth/internal/domain/entity"
	"github.com/oksasatya/coherency-auth/internal/interface/middleware"
	"github.com/oksasatya/coherency-auth/pkg/response"
	"github.com/oksasatya/coherency-auth/pkg/validation"
)

// loginOutcomes counts login results by error kind, exposed under /api/debug/vars.
var loginOutcomes = expvar.NewMap("login_outcomes")

type AuthHandler struct {
	Svc    *application.AuthService
	Logger *logrus.Logger
}

func NewAuthHandler(svc *application.AuthService, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	Username  string `json:"username" binding:"required,username"`
	Email     string `json:"email" binding:"required,email,max=255"`
	Password  string `json:"password" binding:"required,pwd,pwdentropy"`
	FirstName string `json:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" binding:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,max=100"`
}

type updateProfileRequest struct {
	FirstName string `json:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" binding:"max=100"`
}

type loginData struct {
	Token     string                `json:"token"`
	ExpiresAt time.Time             `json:"expiresAt"`
	User      *application.UserView `json:"user"`
}

type attemptView struct {
	ID            string    `json:"id"`
	Result        string    `json:"result"`
	FailureReason string    `json:"failureReason,omitempty"`
	IPAddress     string    `json:"ipAddress,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
	AttemptedAt   time.Time `json:"attemptedAt"`
}

// statusFor maps the error taxonomy to HTTP at the boundary only.
func statusFor(err error) int {
	switch application.KindOf(err) {
	case application.KindValidation:
		return http.StatusBadRequest
	case application.KindAuthentication, application.KindInvariant:
		return http.StatusUnauthorized
	case application.KindLockout:
		return http.StatusLocked
	case application.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, application.MsgInvalidRequest, validation.ToDetails(err))
		return
	}
	v, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.Error[any](c, statusFor(err), application.PublicMessage(application.OpRegister, err), nil)
		return
	}
	response.Success(c, http.StatusCreated, v, application.MsgRegisterSuccess, nil)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, application.MsgInvalidRequest, validation.ToDetails(err))
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), application.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: clientIP(c),
		UserAgent: c.GetHeader("User-Agent"),
		RequestID: c.GetString("request_id"),
	})
	if err != nil {
		loginOutcomes.Add(application.KindOf(err).String(), 1)
		var detail any
		var ae *application.AuthError
		if errors.As(err, &ae) && ae.Kind == application.KindLockout && ae.LockedUntil != nil {
			detail = gin.H{"lockedUntil": ae.LockedUntil.UTC()}
			if secs := int(time.Until(*ae.LockedUntil).Seconds()); secs > 0 {
				c.Header("Retry-After", strconv.Itoa(secs))
			}
		}
		response.Error[any](c, statusFor(err), application.PublicMessage(application.OpLogin, err), detail)
		return
	}
	loginOutcomes.Add("success", 1)
	response.Success(c, http.StatusOK, loginData{Token: res.Token, ExpiresAt: res.ExpiresAt.UTC(), User: res.User}, application.MsgLoginSuccess, nil)
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	v, err := h.Svc.Profile(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		if claims, ok := middleware.ClaimsFrom(c); ok && application.KindOf(err) == application.KindStorage {
			// store unavailable: fall back to what the token asserts
			id := claims.Identity()
			response.Success(c, http.StatusOK, &application.UserView{
				ID: id.ID, Username: id.Username, Email: id.Email,
				IsActive: id.IsActive, IsEmailVerified: id.IsEmailVerified,
			}, "ok", nil)
			return
		}
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
		return
	}
	response.Success(c, http.StatusOK, v, "ok", nil)
}

// Attempts GET /api/auth/attempts?limit=N
func (h *AuthHandler) Attempts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	hist, err := h.Svc.LoginHistory(c.Request.Context(), c.GetString("userID"), limit)
	if err != nil {
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("user_id", c.GetString("userID")).Error("load login history")
		}
		response.Error[any](c, http.StatusInternalServerError, "could not load login history", nil)
		return
	}
	out := make([]attemptView, 0, len(hist.Attempts))
	for _, a := range hist.Attempts {
		out = append(out, toAttemptView(a))
	}
	response.Success(c, http.StatusOK, out, "ok", gin.H{"recentFailures": hist.RecentFailures})
}

// UpdateProfile PUT /api/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, application.MsgInvalidRequest, validation.ToDetails(err))
		return
	}
	v, err := h.Svc.UpdateProfile(c.Request.Context(), c.GetString("userID"), application.ProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if application.KindOf(err) == application.KindAuthentication {
			status = http.StatusNotFound
		}
		response.Error[any](c, status, "could not update profile", nil)
		return
	}
	response.Success(c, http.StatusOK, v, "profile updated", nil)
}

func toAttemptView(a entity.LoginAttempt) attemptView {
	return attemptView{
		ID:            a.ID,
		Result:        string(a.Result),
		FailureReason: a.FailureReason,
		IPAddress:     a.IPAddress,
		UserAgent:     a.UserAgent,
		AttemptedAt:   a.AttemptedAt.UTC(),
	}
}

func clientIP(c *gin.Context) string {
	if ip := c.GetString("real_ip"); ip != "" {
		return ip
	}
	return middleware.ClientOrigin(c)
}
