package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var ErrAdminDisabled = errors.New("admin tokens are not configured")

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService signs and checks HS256 operator tokens for the admin API.
type JWTService struct {
	secret []byte
	issuer string
}

func NewJWTService(secret string) *JWTService {
	return &JWTService{secret: []byte(secret), issuer: "cases-miniapp-backend"}
}

func (s *JWTService) Enabled() bool {
	return len(s.secret) > 0
}

func (s *JWTService) GenerateToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrAdminDisabled
	}

	now := time.Now()
	claims := AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *JWTService) ValidateToken(tokenString string) (*AdminClaims, error) {
	if !s.Enabled() {
		return nil, ErrAdminDisabled
	}

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Role != RoleAdmin {
		return nil, fmt.Errorf("invalid token: not an admin token")
	}

	return claims, nil
}
