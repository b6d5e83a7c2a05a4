package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/collabary/payments/internal"
)

// Claims are the access token payload: the acting user and their
// marketplace role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and verifies HS256 bearer tokens. There is no login
// flow in this service; tokens are minted by the identity platform (or
// the seeder, for local work) with the same shared secret.
type Service struct {
	secret        []byte
	tokenDuration time.Duration
	logger        *slog.Logger
}

func NewService(secret string, tokenDuration time.Duration, logger *slog.Logger) *Service {
	return &Service{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
		logger:        logger,
	}
}

// IssueToken mints an access token for a user. Used by the seeder and
// tests.
func (s *Service) IssueToken(userID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken verifies the signature and expiry and returns the claims.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

// Middleware authenticates the bearer token and puts the acting user id
// on the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			s.unauthorized(w, apperrors.ErrInvalidToken)
			return
		}

		claims, err := s.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			s.unauthorized(w, err)
			return
		}

		ctx := apperrors.ContextWithUserID(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) unauthorized(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.IsAppError(err)
	if !ok {
		appErr = apperrors.ErrInvalidToken
	}
	status, body := appErr.ToHTTPResponse()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		s.logger.Error("failed to encode auth error", "error", encErr)
	}
}
