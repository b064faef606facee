package public

import (
	"time"

	"github.com/flashmart-next/internal/http/response"
	"github.com/flashmart-next/internal/models"

	"github.com/gin-gonic/gin"
)

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserView  `json:"user"`
}

// UserView 用户公开视图
type UserView struct {
	ID          uint      `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	IsVerified  bool      `json:"is_verified"`
	IsPremium   bool      `json:"is_premium"`
	CreatedAt   time.Time `json:"created_at"`
}

func newUserView(user *models.User) UserView {
	return UserView{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		IsVerified:  user.IsVerified(),
		IsPremium:   user.IsPremium,
		CreatedAt:   user.CreatedAt,
	}
}

// Register 用户注册
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	user, token, expiresAt, err := h.UserAuthService.Register(req.Email, req.Password, req.DisplayName)
	if err != nil {
		respondWithMappedError(c, err, authErrorRules, response.CodeInternal, "注册失败")
		return
	}

	response.Success(c, AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      newUserView(user),
	})
}

// Login 用户登录
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	user, token, expiresAt, err := h.UserAuthService.Login(req.Email, req.Password)
	if err != nil {
		respondWithMappedError(c, err, authErrorRules, response.CodeInternal, "登录失败")
		return
	}

	response.Success(c, AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      newUserView(user),
	})
}

// GetProfile 当前用户信息
func (h *Handler) GetProfile(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	user, err := h.UserAuthService.GetProfile(uid)
	if err != nil {
		respondWithMappedError(c, err, authErrorRules, response.CodeInternal, "获取用户信息失败")
		return
	}

	response.Success(c, newUserView(user))
}
