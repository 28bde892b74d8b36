package services

import (
	"fmt"
	"time"

	"catalog-service/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const accessTokenType = "access"

// Claims is the verified content of an access token.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	Role      models.Role
	TokenID   string
	ExpiresAt time.Time
}

// TokenService issues and validates HS256 access tokens.
type TokenService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{secretKey: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Generate signs an access token for user. Every token carries a unique jti
// so it can be revoked on logout.
func (s *TokenService) Generate(user *models.User) (string, *Claims, error) {
	now := s.now()
	c := &Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(s.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   c.UserID.String(),
		"email": c.Email,
		"role":  string(c.Role),
		"typ":   accessTokenType,
		"jti":   c.TokenID,
		"exp":   c.ExpiresAt.Unix(),
		"iat":   now.Unix(),
	})
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, c, nil
}

// Validate parses tokenStr and checks signature, expiry and token type.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	token, err := parser.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if typ, _ := mc["typ"].(string); typ != accessTokenType {
		return nil, fmt.Errorf("invalid token type")
	}

	sub, _ := mc["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject")
	}
	jti, _ := mc["jti"].(string)
	if jti == "" {
		return nil, fmt.Errorf("token has no id")
	}
	exp, _ := mc["exp"].(float64)
	email, _ := mc["email"].(string)
	role, _ := mc["role"].(string)

	return &Claims{
		UserID:    userID,
		Email:     email,
		Role:      models.Role(role),
		TokenID:   jti,
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}
