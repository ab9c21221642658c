// Package qrsign signs and verifies the compact payloads embedded in ticket
// QR codes. A payload is an HS256 JWT over the ticket identity, so gate
// devices can check authenticity offline with nothing but the shared secret.
package qrsign

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

var (
	// ErrMalformedPayload means the string could not be decoded into a
	// structurally valid payload at all.
	ErrMalformedPayload = errors.New("malformed qr payload")

	// ErrBadSignature means the payload decoded fine but the signature does
	// not match its contents: tampering, truncation or a replay with an
	// altered id.
	ErrBadSignature = errors.New("qr signature verification failed")

	// ErrNoSecret means the codec was constructed without a signing secret.
	ErrNoSecret = errors.New("qr signing secret not configured")
)

// Claims are the signed, non-mutable fields of a ticket QR payload.
type Claims struct {
	TicketID string `json:"tid"`
	Tier     string `json:"tier,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Sign produces the signed string for the given claims. It is deterministic:
// the same claims and secret always yield the same output.
func (c *Codec) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign qr payload: %w", err)
	}
	return signed, nil
}

// Mint builds and signs a fresh payload for a newly sold ticket. The nonce
// ties the payload to this issuance, so a reissued ticket invalidates
// nothing but matches nothing either.
func (c *Codec) Mint(ticketID, tier string, issuedAt time.Time) (string, error) {
	claims := &Claims{
		TicketID: ticketID,
		Tier:     tier,
		Nonce:    uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issuedAt.UTC()),
		},
	}
	return c.Sign(claims)
}

// Parse decodes and verifies a signed payload. Malformed input and forged
// signatures come back as distinct errors; both mean the ticket is rejected,
// but callers may want to report them differently.
func (c *Codec) Parse(signed string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !token.Valid || claims.TicketID == "" {
		return nil, ErrBadSignature
	}
	return claims, nil
}

// Verify reports whether the signed payload is authentic and unmodified.
func (c *Codec) Verify(signed string) bool {
	_, err := c.Parse(signed)
	return err == nil
}

// PNG renders the signed payload as a QR code image for embedding in
// confirmation email.
func (c *Codec) PNG(signed string, size int) ([]byte, error) {
	qr, err := qrcode.New(signed, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to build qr code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("failed to encode qr png: %w", err)
	}

	return buf.Bytes(), nil
}
