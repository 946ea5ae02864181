package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/middleware"
	"github.com/itorigin/site/internal/models"
	jwtpkg "github.com/itorigin/site/internal/pkg/jwt"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("wrong username or password")
	ErrAlreadyRegistered  = errors.New("owner already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongPassword      = errors.New("wrong password")
	ErrDeleteSelf         = errors.New("cannot delete your own account")
)

type LoginDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterDTO struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name"     binding:"max=191"`
	Email    string `json:"email"    binding:"omitempty,email"`
}

type CreateUserDTO struct {
	RegisterDTO
	Role string `json:"role" binding:"omitempty,oneof=admin author viewer"`
}

type ChangePasswordDTO struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8,max=72"`
}

type userResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	LastLoginTime *time.Time `json:"lastLoginTime"`
	LastLoginIP   string     `json:"lastLoginIp"`
	Created       time.Time  `json:"created"`
}

type loginResponse struct {
	Token string        `json:"token"`
	User  *userResponse `json:"user"`
}

func toResponse(u *models.UserModel) *userResponse {
	return &userResponse{
		ID: u.ID, Username: u.Username, Name: u.Name, Email: u.Email, Role: u.Role,
		LastLoginTime: u.LastLoginTime, LastLoginIP: u.LastLoginIP, Created: u.CreatedAt,
	}
}

// Service manages dashboard accounts and implements middleware.Authenticator.
type Service struct {
	store  Store
	tokens *jwtpkg.Manager
	logger *zap.Logger
	cost   int
	now    func() time.Time
}

func NewService(store Store, tokens *jwtpkg.Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		tokens: tokens,
		logger: logger.Named("user"),
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Authenticate verifies the token and loads the user so that role changes
// and deletions take effect before the token expires.
func (s *Service) Authenticate(ctx context.Context, token string) (middleware.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return middleware.Identity{}, err
	}
	u, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		return middleware.Identity{}, err
	}
	if u == nil {
		return middleware.Identity{}, ErrUserNotFound
	}
	return middleware.Identity{UserID: u.ID, Role: u.Role}, nil
}

func (s *Service) Login(ctx context.Context, username, password, ip string) (string, *models.UserModel, error) {
	u, err := s.store.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", nil, err
	}
	if u == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.store.RecordLogin(ctx, u.ID, now, ip); err != nil {
		s.logger.Warn("record login", zap.String("user", u.ID), zap.Error(err))
	} else {
		u.LastLoginTime = &now
		u.LastLoginIP = ip
	}

	token, err := s.tokens.Sign(u.ID, u.Role)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *Service) IsRegistered(ctx context.Context) (bool, error) {
	n, err := s.store.Count(ctx)
	return n > 0, err
}

// Register creates the first account as admin. Once any user exists it is
// closed and further accounts come from CreateUser.
func (s *Service) Register(ctx context.Context, dto *RegisterDTO) (*models.UserModel, error) {
	registered, err := s.IsRegistered(ctx)
	if err != nil {
		return nil, err
	}
	if registered {
		return nil, ErrAlreadyRegistered
	}
	u, err := s.create(ctx, dto, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("owner registered", zap.String("user", u.ID), zap.String("username", u.Username))
	return u, nil
}

// CreateUser adds an account on behalf of an admin. Role defaults to author.
func (s *Service) CreateUser(ctx context.Context, dto *CreateUserDTO) (*models.UserModel, error) {
	role := dto.Role
	if role == "" {
		role = models.RoleAuthor
	}
	return s.create(ctx, &dto.RegisterDTO, role)
}

func (s *Service) create(ctx context.Context, dto *RegisterDTO, role string) (*models.UserModel, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	username := strings.TrimSpace(dto.Username)
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		name = username
	}
	u := &models.UserModel{
		Username: username,
		Name:     name,
		Email:    strings.TrimSpace(dto.Email),
		Password: string(hash),
		Role:     role,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]models.UserModel, error) {
	return s.store.List(ctx)
}

func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrDeleteSelf
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, id, oldPwd, newPwd string) error {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(oldPwd)); err != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPwd), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdatePassword(ctx, id, string(hash))
}

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("user.http")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/user")
	g.GET("/allow-register", h.allowRegister)
	g.POST("/login", h.login)
	g.POST("/register", h.register)

	a := g.Group("", authMW)
	a.GET("/me", h.me)
	a.PATCH("/password", h.changePassword)
	a.POST("/logout", h.logout)

	admin := rg.Group("/users", authMW, middleware.RequireRole(models.RoleAdmin))
	admin.GET("", h.list)
	admin.POST("", h.create)
	admin.DELETE("/:id", h.delete)
}

func (h *Handler) allowRegister(c *gin.Context) {
	registered, err := h.svc.IsRegistered(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"allow": !registered})
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	token, u, err := h.svc.Login(c.Request.Context(), dto.Username, dto.Password, c.ClientIP())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, loginResponse{Token: token, User: toResponse(u)})
}

func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	u, err := h.svc.Register(c.Request.Context(), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, toResponse(u))
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.svc.GetByID(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, toResponse(u))
}

func (h *Handler) changePassword(c *gin.Context) {
	var dto ChangePasswordDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	err := h.svc.ChangePassword(c.Request.Context(), middleware.CurrentUserID(c), dto.OldPassword, dto.NewPassword)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) logout(c *gin.Context) {
	// JWT is stateless; client discards the token.
	response.NoContent(c)
}

func (h *Handler) list(c *gin.Context) {
	users, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	out := make([]*userResponse, 0, len(users))
	for i := range users {
		out = append(out, toResponse(&users[i]))
	}
	response.OK(c, out)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	u, err := h.svc.CreateUser(c.Request.Context(), &dto)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, toResponse(u))
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		response.Unauthorized(c)
	case errors.Is(err, ErrAlreadyRegistered):
		response.Forbidden(c)
	case errors.Is(err, ErrUsernameTaken):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrUserNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrWrongPassword), errors.Is(err, ErrDeleteSelf):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("user request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.InternalError(c, err)
	}
}
