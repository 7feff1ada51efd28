package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sccompanion/internal/cache"
	"sccompanion/internal/config"
	"sccompanion/internal/events"
	"sccompanion/internal/middleware"
	"sccompanion/internal/models"
	"sccompanion/internal/repository"
	"sccompanion/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 12

// RegisterInput is the body of POST /api/users/register.
type RegisterInput struct {
	Handle      string  `json:"handle" validate:"required,min=3,max=30,handle"`
	DisplayName string  `json:"displayName" validate:"required,min=1,max=100"`
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,min=8"`
	Bio         string  `json:"bio" validate:"max=500"`
	Location    string  `json:"location" validate:"max=100"`
	RSIHandle   *string `json:"rsi_handle" validate:"omitempty,min=1,max=50"`
}

// LoginInput is the body of POST /api/users/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResult is a user together with a freshly issued token.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// AuthService registers users, checks credentials and issues tokens.
type AuthService struct {
	base
	cfg *config.Config
}

// NewAuthService returns a new AuthService.
func NewAuthService(store *repository.Store, cfg *config.Config, deps Dependencies) *AuthService {
	return &AuthService{base: newBase(store, deps), cfg: cfg}
}

// Register creates an account with the registration bonus and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if u, err := s.store.Users.GetByEmail(ctx, in.Email); err != nil {
		return nil, err
	} else if u != nil {
		return nil, models.NewConflictError("Email already registered")
	}
	if u, err := s.store.Users.GetByHandle(ctx, in.Handle); err != nil {
		return nil, err
	} else if u != nil {
		return nil, models.NewConflictError("Handle already taken")
	}
	if in.RSIHandle != nil {
		if u, err := s.store.Users.GetByRSIHandle(ctx, *in.RSIHandle); err != nil {
			return nil, err
		} else if u != nil {
			return nil, models.NewConflictError("RSI handle already linked to another account")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), BcryptCost)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("hash password: %w", err))
	}

	user := &models.User{
		Handle:       in.Handle,
		DisplayName:  in.DisplayName,
		Email:        in.Email,
		PasswordHash: string(hash),
		Bio:          in.Bio,
		Location:     in.Location,
		RSIHandle:    in.RSIHandle,
		Role:         models.RoleUser,
		IsActive:     true,
	}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		xp, err := addXP(ctx, tx, user.ID, models.XPRegistrationBonus, "registration")
		if err != nil {
			return err
		}
		user.XP = xp
		return nil
	})
	if err != nil {
		return nil, err
	}
	cache.InvalidateLeaderboard(ctx)

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Type: events.UserRegistered, ActorID: user.ID})
	return &AuthResult{User: user, Token: token}, nil
}

// Login checks credentials. The password is verified before account state
// so that state is only disclosed to the account owner. A timed ban that
// has run out is lifted here.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.store.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if !user.IsActive {
		return nil, models.NewUnauthorizedError("Account is deactivated")
	}

	now := s.now()
	if user.BanExpired(now) {
		if err := s.store.Users.Update(ctx, user.ID, liftBan()); err != nil {
			return nil, err
		}
		clearBan(user)
		cache.InvalidateUser(ctx, user.ID)
		cache.InvalidateLeaderboard(ctx)
	}
	if user.BanInEffect(now) {
		return nil, models.NewUnauthorizedError("Account is banned")
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Refresh issues a new token for a user that can still act.
func (s *AuthService) Refresh(ctx context.Context, userID uint) (string, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return "", models.NewUnauthorizedError("Invalid user")
		}
		return "", err
	}
	if !user.CanAct(s.now()) {
		return "", models.NewUnauthorizedError("Invalid user")
	}
	return s.IssueToken(user)
}

// Logout blacklists the token's id until it would have expired.
func (s *AuthService) Logout(ctx context.Context, claims *middleware.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := cache.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return models.NewInternalError(fmt.Errorf("revoke token: %w", err))
	}
	return nil
}

// Me returns the caller with level progress.
func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, models.LevelProgress, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, models.LevelProgress{}, err
	}
	return user, models.Progress(user.XP), nil
}

// LinkRSI attaches an RSI handle to the caller and awards the link bonus.
// Linking a handle already on another account is a conflict.
func (s *AuthService) LinkRSI(ctx context.Context, userID uint, rsiHandle string) (*models.User, error) {
	rsiHandle = strings.TrimSpace(rsiHandle)
	if l := len(rsiHandle); l < 1 || l > 50 {
		return nil, models.NewFieldValidationError([]models.FieldError{
			{Field: "rsi_handle", Message: "must be between 1 and 50 characters"},
		})
	}

	owner, err := s.store.Users.GetByRSIHandle(ctx, rsiHandle)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.ID != userID {
		return nil, models.NewConflictError("RSI handle already linked to another account")
	}

	var user *models.User
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Users.Update(ctx, userID, map[string]any{"rsi_handle": rsiHandle}); err != nil {
			if models.IsCode(err, models.CodeConflict) {
				return models.NewConflictError("RSI handle already linked to another account")
			}
			return err
		}
		if _, err := addXP(ctx, tx, userID, models.XPRSILinkBonus, "rsi_link"); err != nil {
			return err
		}
		user, err = tx.Users.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	xpChanged(ctx, userID)
	return user, nil
}

// UpdateGEID stores the caller's RSI GEID.
func (s *AuthService) UpdateGEID(ctx context.Context, userID uint, geid string) (*models.User, error) {
	if err := validation.ValidateGEID(geid); err != nil {
		return nil, models.NewFieldValidationError([]models.FieldError{
			{Field: "rsi_geid", Message: "must look like GEID_<letters, numbers, underscores>"},
		})
	}
	if err := s.store.Users.Update(ctx, userID, map[string]any{"rsi_geid": geid}); err != nil {
		return nil, err
	}
	cache.InvalidateUser(ctx, userID)
	return s.store.Users.GetByID(ctx, userID)
}

// IssueToken signs an HS256 token for user.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	ttl := s.cfg.JWTTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	claims := middleware.Claims{
		UserIDClaim: user.ID,
		Handle:      user.Handle,
		Email:       user.Email,
		Role:        string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    s.cfg.JWTIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        fmt.Sprintf("%d-%s", now.Unix(), uuid.New().String()[:8]),
		},
	}
	if s.cfg.JWTAudience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.JWTAudience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", models.NewInternalError(fmt.Errorf("sign token: %w", err))
	}
	return signed, nil
}

func liftBan() map[string]any {
	return map[string]any{
		"is_banned":     false,
		"banned_at":     nil,
		"banned_reason": nil,
		"banned_by":     nil,
		"banned_until":  nil,
	}
}

func clearBan(u *models.User) {
	u.IsBanned = false
	u.BannedAt = nil
	u.BannedReason = nil
	u.BannedBy = nil
	u.BannedUntil = nil
}
