package api

import (
	"fmt"
	"net/http"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "pawmarket-api"

	ctxKeyAddress   = "address"
	ctxKeyRoles     = "roles"
	ctxKeyRequestID = "request_id"
)

// AuthService issues and validates API tokens. A token binds a request to an
// account address; the market itself decides what that address may do.
type AuthService struct {
	jwtSecret []byte
	now       func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(jwtSecret []byte) *AuthService {
	return &AuthService{jwtSecret: jwtSecret, now: time.Now}
}

// Claims represents JWT claims
type Claims struct {
	Address string   `json:"address"`
	Roles   []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for address valid for ttl.
func (as *AuthService) GenerateToken(address sdk.AccAddress, roles []string, ttl time.Duration) (*TokenResponse, error) {
	if address.Empty() {
		return nil, fmt.Errorf("address required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}
	now := as.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		Address: address.String(),
		Roles:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(as.jwtSecret)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: signed, Address: claims.Address, Roles: roles, ExpiresAt: expiresAt}, nil
}

// ValidateToken validates a JWT token and returns the claims
func (as *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return as.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(as.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if _, err := sdk.AccAddressFromBech32(claims.Address); err != nil {
		return nil, fmt.Errorf("invalid address claim: %w", err)
	}
	return claims, nil
}

// callerAddress returns the authenticated caller. Only valid behind
// AuthMiddleware.
func callerAddress(c *gin.Context) (sdk.AccAddress, bool) {
	raw, ok := c.Get(ctxKeyAddress)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return nil, false
	}
	addr, ok := raw.(sdk.AccAddress)
	if !ok || addr.Empty() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return nil, false
	}
	return addr, true
}
