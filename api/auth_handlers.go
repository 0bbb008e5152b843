package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"towbid/adapters/auth"
	"towbid/models"
)

type signUpRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type userResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:         u.ID.String(),
		Username:   u.Username,
		Email:      u.Email,
		Role:       string(u.Role),
		IsVerified: u.IsVerified,
	}
}

func (srv *Server) postSignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("Password must be at least 8 characters")})
		return
	}
	// 註冊只開放一般角色，管理員由既有管理員指派
	role := models.UserRole(req.Role)
	if role != models.RoleBidder && role != models.RoleSeller {
		role = models.RoleBidder
	}

	user, token, err := srv.deps.Auth.SignUp(c.Request.Context(), req.Username, req.Email, req.Password, role)
	if errors.Is(err, auth.ErrEmailTaken) {
		c.JSON(http.StatusConflict, gin.H{"message": lo.ToPtr("Email is already registered")})
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user":  toUserResponse(user),
		"token": token,
	})
}

func (srv *Server) postSignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	user, token, err := srv.deps.Auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrWrongCredential) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": lo.ToPtr("Wrong email or password")})
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":  toUserResponse(user),
		"token": token,
	})
}

func (srv *Server) getMe(c *gin.Context) {
	tokenString, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	user, err := srv.deps.Auth.CurrentUser(c.Request.Context(), tokenString)
	if errors.Is(err, auth.ErrUserNotFound) || errors.Is(err, auth.ErrInvalidToken) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": lo.ToPtr("Invalid access token")})
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (srv *Server) postChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr(err.Error())})
		return
	}

	if len(req.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"message": lo.ToPtr("New password must be at least 8 characters")})
		return
	}

	claims := currentClaims(c)
	err := srv.deps.Auth.ChangePassword(c.Request.Context(), claims.UserID(), req.OldPassword, req.NewPassword)
	if errors.Is(err, auth.ErrWrongCredential) {
		c.JSON(http.StatusForbidden, gin.H{"message": lo.ToPtr("Wrong password")})
		return
	}
	if errors.Is(err, auth.ErrUserNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": lo.ToPtr("User no longer exists")})
		return
	}
	if err != nil {
		srv.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
