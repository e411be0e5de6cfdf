package accounts

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/wavecheck/wavecheck/internal/cache"
	"github.com/wavecheck/wavecheck/internal/models"
	"github.com/wavecheck/wavecheck/internal/storage/pgroster"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrSessionInvalid     = errors.New("session invalid or expired")
)

type Store interface {
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	AccountByBadge(ctx context.Context, badgeID string) (*models.Account, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Identity is the authenticated operator attached to a request.
type Identity struct {
	AccountID string   `json:"accountId"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	Stations  []string `json:"stations"`
}

// Session is what a successful login returns to the terminal.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Identity  Identity  `json:"identity"`
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	Stations []string `json:"stations"`
	Email    string   `json:"email"`
}

// Service issues and verifies operator sessions. Tokens are HS256 JWTs;
// the session id additionally lives in redis with the same TTL so logout
// revokes a token before its expiry.
type Service struct {
	store      Store
	sessions   cache.BytesCache
	limiter    Limiter
	secret     []byte
	ttl        time.Duration
	loginLimit int64

	now func() time.Time
}

func New(store Store, sessions cache.BytesCache, limiter Limiter, secret string, ttl time.Duration, loginLimit int64) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if loginLimit <= 0 {
		loginLimit = 10
	}
	return &Service{
		store:      store,
		sessions:   sessions,
		limiter:    limiter,
		secret:     []byte(secret),
		ttl:        ttl,
		loginLimit: loginLimit,
		now:        time.Now,
	}
}

func sessionKey(jti string) string { return "session:" + jti }

func (s *Service) throttle(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	ok, _, err := s.limiter.Allow(ctx, "login:"+key, s.loginLimit, time.Minute)
	if err != nil {
		return errors.Wrap(err, "login throttle")
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// Authenticate verifies an email/password pair and opens a session.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.throttle(ctx, email); err != nil {
		return nil, err
	}

	acc, err := s.store.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgroster.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.openSession(ctx, acc)
}

// AuthenticateBadge opens a session from a badge scan at the kiosk. Like
// roster lookups it tolerates both historical badge spellings.
func (s *Service) AuthenticateBadge(ctx context.Context, badgeID string) (*Session, error) {
	badge := strings.TrimSpace(badgeID)
	if badge == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.throttle(ctx, "badge:"+badge); err != nil {
		return nil, err
	}

	acc, err := s.store.AccountByBadge(ctx, badge)
	if errors.Is(err, pgroster.ErrNotFound) {
		if n, perr := strconv.ParseInt(badge, 10, 64); perr == nil {
			if c := strconv.FormatInt(n, 10); c != badge {
				acc, err = s.store.AccountByBadge(ctx, c)
			}
		}
	}
	if err != nil {
		if errors.Is(err, pgroster.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.openSession(ctx, acc)
}

func (s *Service) openSession(ctx context.Context, acc *models.Account) (*Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	jti := uuid.NewString()

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name:     acc.Name,
		Role:     acc.Role,
		Stations: acc.Stations,
		Email:    acc.Email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, errors.Wrap(err, "sign session token")
	}
	if err := s.sessions.Set(ctx, sessionKey(jti), []byte(acc.ID), s.ttl); err != nil {
		return nil, errors.Wrap(err, "store session")
	}

	return &Session{
		Token:     token,
		ExpiresAt: exp,
		Identity: Identity{
			AccountID: acc.ID,
			Name:      acc.Name,
			Email:     acc.Email,
			Role:      acc.Role,
			Stations:  acc.Stations,
		},
	}, nil
}

func (s *Service) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// Verify checks a bearer token and returns the identity it carries. A token
// whose session was revoked by Logout fails even before its expiry.
func (s *Service) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	_, found, err := s.sessions.Get(ctx, sessionKey(claims.ID))
	if err != nil {
		return nil, errors.Wrap(err, "session lookup")
	}
	if !found {
		return nil, ErrSessionInvalid
	}
	return &Identity{
		AccountID: claims.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		Role:      claims.Role,
		Stations:  claims.Stations,
	}, nil
}

// Logout revokes the token's session immediately.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return ErrSessionInvalid
	}
	return s.sessions.Del(ctx, sessionKey(claims.ID))
}

// CanAccessStation applies the station-access rule to an identity.
func (id *Identity) CanAccessStation(stationID string) bool {
	return models.HasStationAccess(id.Role, id.Stations, stationID)
}

// CanManageMasterList gates the permanent-registry surface.
func (id *Identity) CanManageMasterList() bool {
	return models.CanManageMasterList(id.Role)
}
