package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose distinguishes what a token proves eligibility for.
type Purpose string

const (
	PurposePickup Purpose = "pickup"
	PurposeReturn Purpose = "return"
)

// ErrInvalid covers every way a token can fail: unknown, expired, consumed,
// wrong purpose, bad signature. Callers get no finer detail on purpose.
var ErrInvalid = errors.New("invalid token")

//go:generate mockgen -source=issuer.go -destination=store_mock.go -package=token

// Store persists issued token ids so single-use survives restarts.
// Consume must be atomic: at most one caller ever gets the transaction id
// back for a given jti.
type Store interface {
	Record(ctx context.Context, jti, transactionID uuid.UUID, purpose Purpose, expiresAt *time.Time) error
	Consume(ctx context.Context, jti uuid.UUID, purpose Purpose, now time.Time) (uuid.UUID, error)
}

// Issuer mints and validates single-use HMAC-signed tokens bound to a
// transaction. The signature makes tokens tamper-evident; the Store makes
// them single-use.
type Issuer struct {
	secret    []byte
	pickupTTL time.Duration
	store     Store
	now       func() time.Time
}

func NewIssuer(secret []byte, pickupTTL time.Duration, store Store) *Issuer {
	return &Issuer{
		secret:    secret,
		pickupTTL: pickupTTL,
		store:     store,
		now:       time.Now,
	}
}

type claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// Issued describes a freshly minted token.
type Issued struct {
	Token     string
	JTI       uuid.UUID
	ExpiresAt *time.Time
}

// IssuePickup mints a pickup token for the transaction, valid for the
// configured TTL.
func (i *Issuer) IssuePickup(ctx context.Context, transactionID uuid.UUID) (*Issued, error) {
	expiresAt := i.now().Add(i.pickupTTL)
	return i.issue(ctx, transactionID, PurposePickup, &expiresAt)
}

// IssueReturn mints a return token. Return tokens never expire so a return
// is always possible, but they are still single-use.
func (i *Issuer) IssueReturn(ctx context.Context, transactionID uuid.UUID) (*Issued, error) {
	return i.issue(ctx, transactionID, PurposeReturn, nil)
}

func (i *Issuer) issue(ctx context.Context, transactionID uuid.UUID, purpose Purpose, expiresAt *time.Time) (*Issued, error) {
	jti := uuid.New()

	c := claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  transactionID.String(),
			ID:       jti.String(),
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}
	if expiresAt != nil {
		c.ExpiresAt = jwt.NewNumericDate(*expiresAt)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	if err := i.store.Record(ctx, jti, transactionID, purpose, expiresAt); err != nil {
		return nil, fmt.Errorf("recording token: %w", err)
	}

	return &Issued{Token: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}

// Validate checks signature, purpose and expiry, then consumes the token in
// one atomic store operation. A token validated once can never validate
// again; concurrent scans of the same token yield exactly one success.
func (i *Issuer) Validate(ctx context.Context, tokenStr string, purpose Purpose) (uuid.UUID, error) {
	var c claims

	parsed, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalid
	}

	if c.Purpose != purpose {
		return uuid.Nil, ErrInvalid
	}

	jti, err := uuid.Parse(c.ID)
	if err != nil {
		return uuid.Nil, ErrInvalid
	}

	txID, err := i.store.Consume(ctx, jti, purpose, i.now())
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			return uuid.Nil, ErrInvalid
		}

		return uuid.Nil, fmt.Errorf("consuming token: %w", err)
	}

	return txID, nil
}
