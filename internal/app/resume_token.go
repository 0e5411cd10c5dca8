package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/google/uuid"
)

// ErrInvalidResumeToken is returned for tokens that fail signature, issuer or expiry checks.
var ErrInvalidResumeToken = errors.New("invalid resume token")

const defaultResumeTokenTTL = 2 * time.Minute

// ResumeTokenService signs host migration snapshots so the next authority can
// trust what the departing one handed over.
type ResumeTokenService struct {
	secret string
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type resumeClaims struct {
	Lineage  string    `json:"lin"`
	Snapshot *Snapshot `json:"snap"`
	jwt.StandardClaims
}

// NewResumeTokenService returns a signer. A zero ttl uses two minutes.
func NewResumeTokenService(secret, issuer string, ttl time.Duration) *ResumeTokenService {
	if ttl <= 0 {
		ttl = defaultResumeTokenTTL
	}
	return &ResumeTokenService{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Sign packs snap into a token bound to the match lineage.
func (s *ResumeTokenService) Sign(lineage string, snap *Snapshot) (string, error) {
	if s == nil {
		return "", fmt.Errorf("resume token service is nil")
	}
	if s.secret == "" {
		return "", fmt.Errorf("resume token secret is not configured")
	}
	if lineage == "" {
		return "", fmt.Errorf("lineage is required")
	}
	if snap == nil {
		return "", fmt.Errorf("snapshot is required")
	}

	now := s.now()
	claims := resumeClaims{
		Lineage:  lineage,
		Snapshot: snap,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   lineage,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// Verify checks a token and returns the lineage and snapshot it carries.
func (s *ResumeTokenService) Verify(tokenString string) (string, *Snapshot, error) {
	if s == nil || s.secret == "" {
		return "", nil, fmt.Errorf("resume token service is not configured")
	}

	claims := &resumeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidResumeToken, err)
	}
	if !token.Valid {
		return "", nil, ErrInvalidResumeToken
	}
	if !claims.VerifyIssuer(s.issuer, true) {
		return "", nil, fmt.Errorf("%w: issuer %q", ErrInvalidResumeToken, claims.Issuer)
	}
	if claims.Lineage == "" || claims.Snapshot == nil {
		return "", nil, fmt.Errorf("%w: missing lineage or snapshot", ErrInvalidResumeToken)
	}
	if !claims.Snapshot.Phase.Valid() {
		return "", nil, fmt.Errorf("%w: unknown phase %q", ErrInvalidResumeToken, claims.Snapshot.Phase)
	}
	return claims.Lineage, claims.Snapshot, nil
}
