package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/your-org/faceauth/internal/errs"
)

// Claims carried by an access token. Validation is stateless: the token
// itself proves subject and expiry; only the unknown-subject check needs
// the accounts table.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 access tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

func NewTokenService(signingKey, issuer string, tokenTTL time.Duration) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// Issue signs a token for the given account, valid for the configured TTL.
func (s *TokenService) Issue(accountID uuid.UUID, email, name string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: accountID.String(),
		Email:     email,
		Name:      name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", errs.Wrap(errs.CodeAuthMalformed, "sign token", err)
	}
	return signed, nil
}

// TTL reports how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration { return s.tokenTTL }

// Validate parses and verifies a token string. It distinguishes an
// expired token from a malformed or mis-signed one.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errs.New(errs.CodeAuthMalformed, "empty token")
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errs.New(errs.CodeAuthMalformed, "unexpected signing algorithm")
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.New(errs.CodeAuthExpired, "token expired")
		}
		return nil, errs.Wrap(errs.CodeAuthMalformed, "invalid token", err)
	}
	if !token.Valid {
		return nil, errs.New(errs.CodeAuthMalformed, "invalid token")
	}
	if _, err := uuid.Parse(claims.AccountID); err != nil {
		return nil, errs.New(errs.CodeAuthMalformed, "invalid subject")
	}
	return claims, nil
}
