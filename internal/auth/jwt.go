package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
)

func (r Role) Valid() bool { return r == RoleCustomer || r == RoleOperator }

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

func (id Identity) IsOperator() bool { return id.Role == RoleOperator }

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid token")

type Signer struct {
	Secret []byte
	TTL    time.Duration
}

func NewSigner(secret string) *Signer {
	return &Signer{Secret: []byte(secret), TTL: 2 * time.Hour}
}

// Issue signs an HS256 token for id.
func (s *Signer) Issue(id Identity) (string, error) {
	if id.UserID == "" || !id.Role.Valid() {
		return "", fmt.Errorf("issue token: bad identity %+v", id)
	}
	now := time.Now()
	claims := Claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// Parse verifies signature and expiry and returns the identity in the token.
func (s *Signer) Parse(tokenStr string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}
