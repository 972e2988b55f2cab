package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims identify the operator or automation calling the API.
type CustomClaims struct {
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
