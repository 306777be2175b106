package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwe"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/hkdf"
)

const (
	issuer   = "live-auction-server"
	roleKey  = "role"
	keySalt  = "auction.session-token"
	keyBytes = 64
)

// Claims identifies the user a session token was issued to.
type Claims struct {
	UserID int64
	Role   types.Role
}

// Authenticator issues and verifies session tokens. Tokens are HS256-signed JWTs wrapped in a
// direct-key A256GCM JWE, so the payload stays opaque to the peer.
type Authenticator struct {
	encKey     []byte
	signKey    []byte
	ttl        time.Duration
	cookieName string
}

// New derives the encryption and signing keys from secret. An empty secret gets a random one, which
// invalidates every token on restart.
func New(secret string, ttl time.Duration, cookieName string) (*Authenticator, error) {
	if secret == "" {
		log.Warn("AUTH_SECRET not set, using a random secret")
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, errors.Wrap(err, "failed to generate secret")
		}
		secret = string(buf)
	}

	info := fmt.Sprintf("Auction Server Generated Encryption Key (%s)", keySalt)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(keySalt), []byte(info))

	key := make([]byte, keyBytes)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}

	return &Authenticator{
		encKey:     key[:32],
		signKey:    key[32:],
		ttl:        ttl,
		cookieName: cookieName,
	}, nil
}

// Issue returns a session token for user.
func (a *Authenticator) Issue(user types.User) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(strconv.FormatInt(user.ID, 10)).
		IssuedAt(now).
		Expiration(now.Add(a.ttl)).
		Claim(roleKey, string(user.Role)).
		Build()
	if err != nil {
		return "", errors.Wrap(err, "failed to build JWT")
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), a.signKey))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign JWT")
	}

	encrypted, err := jwe.Encrypt(signed,
		jwe.WithKey(jwa.DIRECT(), a.encKey),
		jwe.WithContentEncryption(jwa.A256GCM()))
	if err != nil {
		return "", errors.Wrap(err, "failed to encrypt JWT")
	}

	return string(encrypted), nil
}

// Verify decrypts and validates a session token.
func (a *Authenticator) Verify(encrypted string) (Claims, error) {
	decrypted, err := jwe.Decrypt([]byte(encrypted), jwe.WithKey(jwa.DIRECT(), a.encKey))
	if err != nil {
		return Claims{}, &errors.AppError{Code: errors.ErrUnauthenticated, Message: "Invalid session token.", Err: err}
	}

	token, err := jwt.Parse(decrypted,
		jwt.WithKey(jwa.HS256(), a.signKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer))
	if err != nil {
		return Claims{}, &errors.AppError{Code: errors.ErrUnauthenticated, Message: "Invalid session token.", Err: err}
	}

	// Check expiration
	if exp, ok := token.Expiration(); ok && exp.Before(time.Now()) {
		return Claims{}, errors.New(errors.ErrUnauthenticated, "Session token expired.")
	}

	sub, _ := token.Subject()
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return Claims{}, &errors.AppError{Code: errors.ErrUnauthenticated, Message: "Invalid session token.", Err: err}
	}
	var role string
	if err := token.Get(roleKey, &role); err != nil {
		return Claims{}, &errors.AppError{Code: errors.ErrUnauthenticated, Message: "Invalid session token.", Err: err}
	}

	return Claims{UserID: id, Role: types.Role(role)}, nil
}

// TokenFromRequest returns the bearer token of r, falling back to the session cookie.
func (a *Authenticator) TokenFromRequest(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok && token != "" {
			return token, true
		}
	}
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
