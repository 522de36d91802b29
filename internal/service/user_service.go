package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"backoffice/internal/auth"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone"`
	Password  string `json:"password" binding:"required,min=6"`
	Role      string `json:"role" binding:"required"`
	PartnerID string `json:"partner_id"`
	ClientID  string `json:"client_id"`
}

type SetupAdminRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=6"`
}

type UpdateUserRequest struct {
	Username  string  `json:"username"`
	Email     string  `json:"email" binding:"omitempty,email"`
	Phone     string  `json:"phone"`
	Role      string  `json:"role"`
	Password  string  `json:"password" binding:"omitempty,min=6"`
	PartnerID *string `json:"partner_id"`
	ClientID  *string `json:"client_id"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	PartnerID string    `json:"partner_id,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type MeResponse struct {
	UserResponse
	Permissions []string `json:"permissions"`
}

// PermissionSource resolves the permission codes of a role
type PermissionSource interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	RoleExists(ctx context.Context, roleName string) (bool, error)
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	SetupAdmin(ctx context.Context, req SetupAdminRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetMe(ctx context.Context, userID string) (*MeResponse, error)
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, role string, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string, actorID string) error
}

type userService struct {
	tx         repository.TransactionManager
	repo       repository.UserRepository
	partners   repository.PartnerRepository
	clients    repository.ClientRepository
	perms      PermissionSource
	tokens     *auth.TokenManager
	refreshTTL time.Duration
	now        func() time.Time
}

// NewUserService returns a new instance of UserService
func NewUserService(tx repository.TransactionManager, repo repository.UserRepository, partners repository.PartnerRepository, clients repository.ClientRepository, perms PermissionSource, tokens *auth.TokenManager, refreshTTL time.Duration) UserService {
	return &userService{
		tx:         tx,
		repo:       repo,
		partners:   partners,
		clients:    clients,
		perms:      perms,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.PartnerID != nil {
		resp.PartnerID = user.PartnerID.String()
	}
	if user.ClientID != nil {
		resp.ClientID = user.ClientID.String()
	}
	return resp
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	user := &model.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:    req.Phone,
		Role:     strings.ToLower(strings.TrimSpace(req.Role)),
	}
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return nil, invalid("invalid email format")
	}

	var err error
	if user.PartnerID, err = parseOptionalID(req.PartnerID, "partner"); err != nil {
		return nil, err
	}
	if user.ClientID, err = parseOptionalID(req.ClientID, "client"); err != nil {
		return nil, err
	}
	if err := s.validateScope(ctx, user); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hashed)

	if err := s.create(ctx, user); err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

// SetupAdmin bootstraps the first administrator; it is refused once any admin exists
func (s *userService) SetupAdmin(ctx context.Context, req SetupAdminRequest) (*UserResponse, error) {
	var created *UserResponse
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		count, err := s.repo.CountByRole(txCtx, model.RoleAdmin)
		if err != nil {
			return fmt.Errorf("failed to count admins: %w", err)
		}
		if count > 0 {
			return forbidden("an administrator already exists")
		}

		created, err = s.CreateUser(txCtx, CreateUserRequest{
			Username: req.Username,
			Email:    req.Email,
			Phone:    req.Phone,
			Password: req.Password,
			Role:     model.RoleAdmin,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if isRecordNotFound(err) {
			return nil, newError(ErrUnauthorized, "invalid email or password")
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, newError(ErrUnauthorized, "invalid email or password")
	}

	return s.issuePair(ctx, user)
}

// RefreshToken rotates the pair: the presented refresh token is consumed
func (s *userService) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, newError(ErrUnauthorized, "refresh token is missing")
	}

	var pair *TokenResponse
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		rt, err := s.repo.GetRefreshToken(txCtx, refreshToken)
		if err != nil {
			if isRecordNotFound(err) {
				return newError(ErrUnauthorized, "invalid refresh token")
			}
			return fmt.Errorf("failed to fetch refresh token: %w", err)
		}

		if err := s.repo.DeleteRefreshToken(txCtx, refreshToken); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		if s.now().After(rt.ExpiresAt) {
			return newError(ErrUnauthorized, "refresh token has expired")
		}

		pair, err = s.issuePair(txCtx, &rt.User)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *userService) GetMe(ctx context.Context, userID string) (*MeResponse, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	codes, err := s.perms.GetPermissionsByRoleName(ctx, user.Role)
	if err != nil {
		return nil, err
	}
	return &MeResponse{UserResponse: *mapToResponse(user), Permissions: codes}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, role string, page, limit int) ([]UserResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	users, total, err := s.repo.List(ctx, strings.ToLower(strings.TrimSpace(role)), page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	wasAdmin := user.Role == model.RoleAdmin

	if req.Role != "" {
		user.Role = strings.ToLower(strings.TrimSpace(req.Role))
	}
	if req.Username != "" {
		user.Username = strings.TrimSpace(req.Username)
	}
	if req.Email != "" {
		user.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if _, err := mail.ParseAddress(user.Email); err != nil {
			return nil, invalid("invalid email format")
		}
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.PartnerID != nil {
		if user.PartnerID, err = parseOptionalID(*req.PartnerID, "partner"); err != nil {
			return nil, err
		}
	}
	if req.ClientID != nil {
		if user.ClientID, err = parseOptionalID(*req.ClientID, "client"); err != nil {
			return nil, err
		}
	}
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = string(hashed)
	}

	if err := s.validateScope(ctx, user); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if wasAdmin && user.Role != model.RoleAdmin {
			if err := s.ensureAnotherAdmin(txCtx); err != nil {
				return err
			}
		}
		if err := s.repo.Update(txCtx, user); err != nil {
			if isDuplicateKey(err) {
				return conflict("username or email already exists")
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id string, actorID string) error {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return err
	}
	if user.ID.String() == actorID {
		return forbidden("you cannot delete your own account")
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if user.Role == model.RoleAdmin {
			if err := s.ensureAnotherAdmin(txCtx); err != nil {
				return err
			}
		}
		if err := s.repo.Delete(txCtx, user.ID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}

// --- Helpers ---

func (s *userService) create(ctx context.Context, user *model.User) error {
	if _, err := s.repo.GetByUsername(ctx, user.Username); err == nil {
		return conflict("username already exists")
	}
	if _, err := s.repo.GetByEmail(ctx, user.Email); err == nil {
		return conflict("email already exists")
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if isDuplicateKey(err) {
			return conflict("username or email already exists")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// validateScope checks the role exists and that partner/client users point at a real record
func (s *userService) validateScope(ctx context.Context, user *model.User) error {
	if user.Username == "" {
		return invalid("username is required")
	}
	ok, err := s.perms.RoleExists(ctx, user.Role)
	if err != nil {
		return err
	}
	if !ok {
		return invalid("role %q does not exist", user.Role)
	}

	switch user.Role {
	case model.RolePartner:
		if user.PartnerID == nil {
			return invalid("partner users require a partner_id")
		}
		if _, err := s.partners.FindByID(ctx, *user.PartnerID); err != nil {
			if isRecordNotFound(err) {
				return notFound("partner not found")
			}
			return fmt.Errorf("failed to fetch partner: %w", err)
		}
		user.ClientID = nil
	case model.RoleClient:
		if user.ClientID == nil {
			return invalid("client users require a client_id")
		}
		if _, err := s.clients.FindByID(ctx, *user.ClientID); err != nil {
			if isRecordNotFound(err) {
				return notFound("client not found")
			}
			return fmt.Errorf("failed to fetch client: %w", err)
		}
		user.PartnerID = nil
	default:
		user.PartnerID = nil
		user.ClientID = nil
	}
	return nil
}

func (s *userService) ensureAnotherAdmin(ctx context.Context) error {
	count, err := s.repo.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count <= 1 {
		return conflict("the last administrator cannot be removed")
	}
	return nil
}

func (s *userService) issuePair(ctx context.Context, user *model.User) (*TokenResponse, error) {
	access, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	rt := &model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.repo.SaveRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{
		Token:        access,
		RefreshToken: rt.Token,
		ExpiresAt:    expiresAt.Format(time.RFC3339),
	}, nil
}

func (s *userService) findUser(ctx context.Context, id string) (*model.User, error) {
	userID, err := parseID(id, "user")
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("user not found")
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}
