package auth

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const maxCredentialLength = 8192

// ValidateCredential rejects values that cannot be sent as a bearer token
func ValidateCredential(token string) error {
	if token == "" {
		return fmt.Errorf("credential cannot be empty")
	}
	if len(token) > maxCredentialLength {
		return fmt.Errorf("credential is too long (maximum %d characters)", maxCredentialLength)
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return fmt.Errorf("credential cannot contain whitespace characters")
	}
	return nil
}

// CredentialExpiry reads the exp claim when the credential is a JWT. Opaque
// credentials report false.
func CredentialExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil || !gjson.ValidBytes(payload) {
		return time.Time{}, false
	}

	exp := gjson.GetBytes(payload, "exp")
	if exp.Type != gjson.Number {
		return time.Time{}, false
	}
	return time.Unix(exp.Int(), 0), true
}

// MagicLinkToken accepts either a bare token or the callback URL carrying it
// in the token query parameter.
func MagicLinkToken(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "token=") {
		return input
	}

	query := input
	if u, err := url.Parse(input); err == nil && u.RawQuery != "" {
		query = u.RawQuery
	} else if i := strings.IndexByte(input, '?'); i >= 0 {
		query = input[i+1:]
	}

	values, err := url.ParseQuery(query)
	if err != nil || values.Get("token") == "" {
		return input
	}
	return values.Get("token")
}
