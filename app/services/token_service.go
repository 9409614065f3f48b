package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatrasa/chatrasa/config"
	"github.com/chatrasa/chatrasa/utils"
	"github.com/golang-jwt/jwt/v5"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// TokenService issues and validates the JWTs guarding the management API.
// Tokens are vendor-scoped: a token only grants access to its own vendor's
// campaigns, workflows and conversations.
type TokenService interface {
	GenerateAPIToken(vendorID uint) (string, error)
	ValidateAPIToken(token string) (*APITokenClaims, error)
}

// APITokenClaims represents the claims in a management API token
type APITokenClaims struct {
	VendorID  uint      `json:"vendor_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenID   string    `json:"jti"`
}

// TokenServiceImpl implements TokenService
type TokenServiceImpl struct {
	accessTokenTTL time.Duration
	secretKey      []byte
	issuer         string
	audience       string
}

// NewTokenService creates a new token service
func NewTokenService(cfg *config.JWTConfig) (TokenService, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	return &TokenServiceImpl{
		accessTokenTTL: cfg.AccessTokenTTL,
		secretKey:      []byte(cfg.SecretKey),
		issuer:         cfg.Issuer,
		audience:       cfg.Audience,
	}, nil
}

// GenerateAPIToken generates a vendor-scoped access token
func (s *TokenServiceImpl) GenerateAPIToken(vendorID uint) (string, error) {
	now := utils.UTCNow()

	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"vendor_id": vendorID,
		"jti":       tokenID,
		"iat":       now.Unix(),
		"exp":       now.Add(s.accessTokenTTL).Unix(),
		"iss":       s.issuer,
		"aud":       s.audience,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateAPIToken validates a JWT token and returns claims
func (s *TokenServiceImpl) ValidateAPIToken(token string) (*APITokenClaims, error) {
	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (any, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		// Check if the error is due to token expiration
		if strings.Contains(err.Error(), "expired") || strings.Contains(err.Error(), "exp") {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	vendorID, ok := claims["vendor_id"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	tokenID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}
	issuedAt, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}
	expiresAt, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}

	if utils.UTCNow().After(time.Unix(int64(expiresAt), 0)) {
		return nil, ErrTokenExpired
	}

	return &APITokenClaims{
		VendorID:  uint(vendorID),
		TokenID:   tokenID,
		IssuedAt:  time.Unix(int64(issuedAt), 0),
		ExpiresAt: time.Unix(int64(expiresAt), 0),
	}, nil
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", bytes), nil
}
