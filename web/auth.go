// ABOUTME: Login, registration and bearer-token middleware for the cloud server
// ABOUTME: Tokens are HS256 JWTs carrying the user id, email and role
package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user,omitempty"`
	Token   string       `json:"token,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Claims identify the caller of an authenticated request.
type Claims struct {
	UserID int64
	Email  string
	Role   string
}

func (s *Server) issueToken(u *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": u.ID,
		"email":   u.Email,
		"role":    u.Role,
		"exp":     now.Add(s.ttl).Unix(),
		"iat":     now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(header string) (*Claims, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errors.New("authorization header must be in format 'Bearer <token>'")
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("the provided token is invalid or expired")
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("the provided token is invalid or expired")
	}
	id, _ := mc["user_id"].(float64)
	email, _ := mc["email"].(string)
	role, _ := mc["role"].(string)
	return &Claims{UserID: int64(id), Email: email, Role: role}, nil
}

// AuthMiddleware rejects requests without a valid bearer token.
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		claims, err := s.parseToken(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("claims", claims)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *Claims {
	v, _ := c.Get("claims")
	claims, _ := v.(*Claims)
	return claims
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, loginResponse{Error: "email and password are required"})
		return
	}

	user, err := s.store.AuthenticateUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, loginResponse{Error: err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, loginResponse{Error: "invalid email or password"})
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, loginResponse{Error: "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, loginResponse{Success: true, User: user, Token: token})
}

// handleRegister creates an account. The first account is always an admin;
// after that only an authenticated admin may register users.
func (s *Server) handleRegister(c *gin.Context) {
	var req db.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	existing, err := s.store.GetAll(ctx, db.Users)
	if err != nil {
		s.fail(c, err)
		return
	}

	if len(existing) == 0 {
		req.Role = models.RoleAdmin
	} else {
		claims, err := s.parseToken(c.GetHeader("Authorization"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if claims.Role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
	}

	row, err := db.UserRow(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.store.Insert(ctx, db.Users, row)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.touch()

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user": models.User{
			ID:        id,
			Name:      req.Name,
			Email:     row["email"].(string),
			Role:      row["role"].(string),
			CreatedAt: row["created_at"].(string),
		},
	})
}

