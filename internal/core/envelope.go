package core

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/altairalabs/trustcore/internal/audit"
	"github.com/altairalabs/trustcore/internal/oracle"
)

// Caller identifies the party a request envelope was issued on behalf of,
// per spec.md §6's request envelope shape: {id, type, did?, ip, userAgent}.
// The transport is responsible for JWT/session validation and for
// populating Caller; the core trusts these fields once extracted.
type Caller struct {
	ID        string
	Type      oracle.AgentKind
	DID       string
	IP        string
	UserAgent string
}

// Payload mirrors the request envelope's payload block.
type Payload struct {
	Classification string
	ContainsPII    bool
	Text           string
	Export         bool
}

// Envelope is the structured record the transport supplies per evaluation
// (spec.md §6, "Request envelope (in)"). It is the only input the core
// accepts from the outside world beyond an already-resolved Bond.
type Envelope struct {
	RequestID       string
	Caller          Caller
	BondID          string
	Action          string
	RequestedScopes []string
	Payload         Payload
	Encrypted       bool
	Headers         map[string]string
}

// ToContext assembles an oracle.Context from e and the Bond the caller
// referenced by BondID resolves to (bond resolution is an external
// collaborator's responsibility; the core reads it by reference only, per
// spec.md §3). now is injected rather than read from the clock so
// evaluation stays byte-for-byte reproducible in tests.
func (e *Envelope) ToContext(bond *oracle.Bond, auditEnabled bool, now time.Time) *oracle.Context {
	scopes := make(map[string]bool, len(e.RequestedScopes))
	for _, s := range e.RequestedScopes {
		scopes[s] = true
	}
	return &oracle.Context{
		RequestID:       e.RequestID,
		UserID:          e.Caller.ID,
		AgentID:         e.Caller.ID,
		AgentKind:       e.Caller.Type,
		Action:          e.Action,
		RequestedScopes: scopes,
		Data: oracle.DataPayload{
			Classification: e.Payload.Classification,
			ContainsPII:    e.Payload.ContainsPII,
			Text:           e.Payload.Text,
			Export:         e.Payload.Export,
		},
		Encrypted:    e.Encrypted || e.Headers["X-Forwarded-Proto"] == "https",
		Headers:      e.Headers,
		Bond:         bond,
		AuditEnabled: auditEnabled,
		Now:          now,
	}
}

// ActorFromCaller converts e.Caller into an audit.Actor for log entries
// that need to attribute an action to the request's caller rather than an
// internal service principal.
func (e *Envelope) ActorFromCaller() audit.Actor {
	return audit.Actor{
		ID:        e.Caller.ID,
		Type:      string(e.Caller.Type),
		DID:       e.Caller.DID,
		IP:        e.Caller.IP,
		UserAgent: e.Caller.UserAgent,
	}
}

// callerClaims is the set of bearer-token claims ExtractCaller understands,
// mirroring the RegisteredClaims-plus-custom-fields pattern the teacher
// uses for its license JWTs (ee/pkg/license/validator.go's licenseClaims),
// generalized from license entitlements to caller identity and scopes.
type callerClaims struct {
	jwt.RegisteredClaims
	AgentKind string   `json:"kind"`
	DID       string   `json:"did"`
	Scopes    []string `json:"scp"`
	BondID    string   `json:"bid"`
}

// ErrUnverifiedBearer is returned when a bearer token's signature cannot be
// verified against the supplied key material.
var ErrUnverifiedBearer = errors.New("core: bearer token signature invalid")

// ExtractCaller validates a bearer token and extracts the caller identity,
// requested scopes, and bond id it carries. It is offered purely as a
// convenience for transports that use JWT bearer tokens; per spec.md §9's
// "no ambient singletons" guidance it is a plain function over an
// explicitly supplied key, not the only way to populate an Envelope — a
// transport using session cookies or mTLS identities builds an Envelope
// directly instead of calling this helper.
//
// key must be an *rsa.PublicKey, *ecdsa.PublicKey, or ed25519.PublicKey,
// matching the token's signing algorithm; any other combination fails
// closed with ErrUnverifiedBearer.
func ExtractCaller(tokenString string, key any) (Caller, []string, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &callerClaims{}, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
			if _, ok := key.(*rsa.PublicKey); !ok {
				return nil, fmt.Errorf("core: expected RSA public key for alg %v", t.Header["alg"])
			}
		case *jwt.SigningMethodECDSA:
			if _, ok := key.(*ecdsa.PublicKey); !ok {
				return nil, fmt.Errorf("core: expected ECDSA public key for alg %v", t.Header["alg"])
			}
		case *jwt.SigningMethodEd25519:
			if _, ok := key.(ed25519.PublicKey); !ok {
				return nil, fmt.Errorf("core: expected Ed25519 public key for alg %v", t.Header["alg"])
			}
		default:
			return nil, fmt.Errorf("core: unsupported signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return Caller{}, nil, "", fmt.Errorf("%w: %v", ErrUnverifiedBearer, err)
	}

	claims, ok := token.Claims.(*callerClaims)
	if !ok || !token.Valid {
		return Caller{}, nil, "", ErrUnverifiedBearer
	}

	id := ""
	if sub, err := claims.GetSubject(); err == nil {
		id = sub
	}

	kind := oracle.AgentKindService
	switch claims.AgentKind {
	case string(oracle.AgentKindAI):
		kind = oracle.AgentKindAI
	case string(oracle.AgentKindHuman):
		kind = oracle.AgentKindHuman
	}

	caller := Caller{ID: id, Type: kind, DID: claims.DID}
	return caller, claims.Scopes, claims.BondID, nil
}
