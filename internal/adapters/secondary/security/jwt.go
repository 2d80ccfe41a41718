package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

// UserClaims : mêmes claims que ceux émis par le service d'identité.
type UserClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"` // ex: "admin", "user"
	jwt.RegisteredClaims
}

// JWTValidator vérifie les access tokens RS256 avec la clé PUBLIQUE uniquement.
type JWTValidator struct {
	publicKey *rsa.PublicKey
}

func NewJWTValidator(publicKeyPEM []byte) (*JWTValidator, error) {
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return &JWTValidator{publicKey: pubKey}, nil
}

// Validate vérifie la signature et retourne l'appelant (Subject + rôle).
func (j *JWTValidator) Validate(tokenString string) (*ports.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (any, error) {
		// Empêche les attaques où l'attaquant force l'algo à "none" ou "HS256"
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.publicKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return &ports.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// PublicKeyPEM encode une clé publique au format PKIX, celui attendu par NewJWTValidator.
func PublicKeyPEM(pub *rsa.PublicKey) []byte {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil // impossible pour une clé RSA valide
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// JWTIssuer signe des tokens de développement (CLI, tests). En prod, seul le service d'identité émet.
type JWTIssuer struct {
	privateKey *rsa.PrivateKey
	issuer     string
}

func NewJWTIssuer(privateKeyPEM []byte) (*JWTIssuer, error) {
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &JWTIssuer{privateKey: privKey, issuer: "atelier-dev"}, nil
}

func NewJWTIssuerFromKey(key *rsa.PrivateKey) *JWTIssuer {
	return &JWTIssuer{privateKey: key, issuer: "atelier-dev"}
}

func (j *JWTIssuer) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(j.privateKey)
}
