package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/store"
)

const userIDClaim = "userId"

// TokenVerifier signs and checks HS256 bearer tokens carrying a userId claim.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) GenerateToken(userID store.ID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		userIDClaim: userID.String(),
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify accepts a raw token or an Authorization header value with a Bearer prefix.
func (v *TokenVerifier) Verify(tokenString string) (store.ID, error) {
	const op = "auth.TokenVerifier.Verify"
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return "", apperr.New(apperr.Unauthenticated, op, fmt.Errorf("missing credential"))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", apperr.New(apperr.Unauthenticated, op, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", apperr.New(apperr.Unauthenticated, op, fmt.Errorf("invalid token"))
	}
	userID, _ := claims[userIDClaim].(string)
	if userID == "" {
		return "", apperr.New(apperr.Unauthenticated, op, fmt.Errorf("token has no %s claim", userIDClaim))
	}
	return store.ID(userID), nil
}
