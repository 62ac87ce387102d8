package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/coa_auth/internal/wallet"
)

var (
	// ErrInvalidSignature is returned when the login signature does not verify
	// against the wallet key.
	ErrInvalidSignature = errors.New("invalid wallet signature")
	// ErrStaleTimestamp is returned when the signed timestamp is too far from
	// the server clock.
	ErrStaleTimestamp = errors.New("login timestamp outside allowed window")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Service authenticates wallets by signature and issues access tokens whose
// subject is the wallet address.
type Service struct {
	secret  []byte
	ttl     time.Duration
	maxSkew time.Duration
	now     func() time.Time
}

// NewService creates a wallet login service.
func NewService(secret string, ttl, maxSkew time.Duration) *Service {
	return &Service{
		secret:  []byte(secret),
		ttl:     ttl,
		maxSkew: maxSkew,
		now:     time.Now,
	}
}

// LoginInput is a signed login challenge. Signature covers
// wallet.LoginMessage(Timestamp).
type LoginInput struct {
	Wallet    wallet.Address
	Timestamp int64
	Signature []byte
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Challenge is the message a wallet signs to log in at Timestamp.
type Challenge struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
	ExpiresAt int64  `json:"expires_at"`
}

// Challenge returns the current login message. Any timestamp within the
// allowed skew is accepted, so clients may also build it themselves.
func (s *Service) Challenge() Challenge {
	now := s.now()
	return Challenge{
		Timestamp: now.Unix(),
		Message:   string(wallet.LoginMessage(now.Unix())),
		ExpiresAt: now.Add(s.maxSkew).Unix(),
	}
}

// Login verifies the signed challenge and issues a token for the wallet.
func (s *Service) Login(in LoginInput) (Token, error) {
	now := s.now()
	signedAt := time.Unix(in.Timestamp, 0)
	if skew := now.Sub(signedAt); skew > s.maxSkew || skew < -s.maxSkew {
		return Token{}, ErrStaleTimestamp
	}
	if !in.Wallet.Verify(wallet.LoginMessage(in.Timestamp), in.Signature) {
		return Token{}, ErrInvalidSignature
	}

	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   in.Wallet.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.ttl.Seconds()), ExpiresAt: exp.UTC()}, nil
}

// Verify checks an access token and returns the wallet it was issued to.
func (s *Service) Verify(token string) (wallet.Address, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return wallet.Address{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	w, err := wallet.ParseAddress(claims.Subject)
	if err != nil {
		return wallet.Address{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return w, nil
}
