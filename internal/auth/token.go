package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"tableside/internal/config"
	"tableside/internal/domain"
	"tableside/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	kindGuest = "guest"
	kindStaff = "staff"
)

type tokenClaims struct {
	Kind      string `json:"kind"`
	SessionID string `json:"sid,omitempty"`
	TableID   int64  `json:"tid,omitempty"`
	PlaceID   int64  `json:"pid"`
	Passcode  string `json:"pc,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 bearer tokens for guests and staff.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	staffTTL time.Duration
	now      func() time.Time
}

func NewTokenIssuer(cfg config.AuthConfig) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		staffTTL: cfg.StaffTokenTTL,
		now:      time.Now,
	}
}

// IssueGuest signs a token that expires together with session.
func (t *TokenIssuer) IssueGuest(session *models.GuestSession) (string, error) {
	claims := tokenClaims{
		Kind:      kindGuest,
		SessionID: session.ID,
		TableID:   session.TableID,
		PlaceID:   session.PlaceID,
		Passcode:  session.Passcode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	return t.sign(claims)
}

func (t *TokenIssuer) IssueStaff(staff *models.Staff) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.staffTTL)
	claims := tokenClaims{
		Kind:    kindStaff,
		PlaceID: staff.PlaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(staff.ID, 10),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := t.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (t *TokenIssuer) sign(claims tokenClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns the identity it carries. It touches no
// storage; every failure is an Unauthorized domain error.
func (t *TokenIssuer) Parse(raw string) (Identity, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.Unauthorized("token expired")
		}
		return nil, domain.Unauthorized("invalid token")
	}

	switch claims.Kind {
	case kindGuest:
		if claims.SessionID == "" || claims.TableID == 0 {
			return nil, domain.Unauthorized("invalid token")
		}
		return GuestIdentity{
			SessionID: claims.SessionID,
			TableID:   claims.TableID,
			PlaceID:   claims.PlaceID,
			Passcode:  claims.Passcode,
			ExpiresAt: claims.ExpiresAt.Time,
		}, nil
	case kindStaff:
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || id <= 0 {
			return nil, domain.Unauthorized("invalid token")
		}
		return StaffIdentity{StaffID: id, PlaceID: claims.PlaceID}, nil
	default:
		return nil, domain.Unauthorized("invalid token")
	}
}
