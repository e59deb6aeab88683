// Package auth resolves bearer tokens to a tenant and role.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Principal is the identity a verified token resolves to.
type Principal struct {
	Tenant string
	Role   string
}

// Verifier checks bearer tokens. Two modes: "dev" accepts plain
// "tenant:role" tokens, "hmac" verifies HS256 JWTs with a shared secret.
type Verifier struct {
	Mode        string
	HMACSecret  []byte
	TenantClaim string
	RoleClaim   string
}

func NewVerifierFromEnv() *Verifier {
	v := &Verifier{
		Mode:        strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE"))),
		HMACSecret:  []byte(os.Getenv("AUTH_HMAC_SECRET")),
		TenantClaim: os.Getenv("AUTH_TENANT_CLAIM"),
		RoleClaim:   os.Getenv("AUTH_ROLE_CLAIM"),
	}
	if v.Mode == "" {
		v.Mode = "dev"
	}
	if v.TenantClaim == "" {
		v.TenantClaim = "tenant"
	}
	if v.RoleClaim == "" {
		v.RoleClaim = "role"
	}
	return v
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "dev":
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" || role == "" {
			return Principal{}, errors.New("dev token must be tenant:role")
		}
		return Principal{Tenant: tenant, Role: role}, nil
	case "hmac":
		return v.verifyHS256(token)
	default:
		return Principal{}, fmt.Errorf("unknown auth mode %q", v.Mode)
	}
}

func (v *Verifier) verifyHS256(token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, errors.New("malformed token")
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, fmt.Errorf("unsupported alg %q", hdr.Alg)
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, err
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0]))
	mac.Write([]byte{'.'})
	mac.Write([]byte(segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, errors.New("signature mismatch")
	}
	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	tenant, _ := claims[v.TenantClaim].(string)
	if tenant == "" {
		return Principal{}, errors.New("token has no tenant claim")
	}
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		role = "viewer"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}

func decodeSegment(seg string, into any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}
