package security

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims carries the verified identity the pipeline trusts. Token
// issuance lives in the identity service; this process only verifies.
type AccessClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func ParseAccessToken(tokenStr string, secret string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		if claims.UserID == "" {
			return nil, fmt.Errorf("token missing uid claim")
		}
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
