package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultAccount is used when a credential record does not name its account
const DefaultAccount = "default"

// SessionTokenName marks a secret that came from an opaque sessionToken
// instead of a named cookie. The controller maps it to the platform's
// session cookie name.
const SessionTokenName = "$sessionToken"

// Secret is one named piece of credential material
type Secret struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CredentialRecord holds the stored authentication material for one platform.
// Secrets keep the order in which they appear in the credential source.
type CredentialRecord struct {
	Platform Platform `json:"platform"`
	Account  string   `json:"account"`
	Secrets  []Secret `json:"secrets"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path,omitempty"`
}

// Key - identifies the (platform, credential) pair for serialization
func (c CredentialRecord) Key() string {
	account := c.Account
	if account == "" {
		account = DefaultAccount
	}
	return string(c.Platform) + "/" + account
}

// SessionToken - returns the opaque session token if the record has one
func (c CredentialRecord) SessionToken() (string, bool) {
	for _, s := range c.Secrets {
		if s.Name == SessionTokenName {
			return s.Value, true
		}
	}
	return "", false
}

// Cookie - looks up a secret by cookie name
func (c CredentialRecord) Cookie(name string) (string, bool) {
	for _, s := range c.Secrets {
		if s.Name == name {
			return s.Value, true
		}
	}
	return "", false
}

// credentialSource is the on-disk shape of one platform entry
type credentialSource struct {
	Account      string          `json:"account"`
	SessionToken string          `json:"sessionToken"`
	Cookies      json.RawMessage `json:"cookies"`
	Domain       string          `json:"domain"`
	Path         string          `json:"path"`
}

// UnmarshalJSON accepts {sessionToken} or {cookies:{name:value}, domain, path}
func (c *CredentialRecord) UnmarshalJSON(data []byte) error {
	var src credentialSource
	if err := json.Unmarshal(data, &src); err != nil {
		return err
	}

	c.Account = src.Account
	c.Domain = src.Domain
	c.Path = src.Path
	c.Secrets = nil

	if src.SessionToken != "" {
		c.Secrets = append(c.Secrets, Secret{Name: SessionTokenName, Value: src.SessionToken})
	}

	if len(src.Cookies) > 0 && !bytes.Equal(bytes.TrimSpace(src.Cookies), []byte("null")) {
		cookies, err := orderedStringMap(src.Cookies)
		if err != nil {
			return fmt.Errorf("invalid cookies: %w", err)
		}
		c.Secrets = append(c.Secrets, cookies...)
	}

	if len(c.Secrets) == 0 {
		return fmt.Errorf("credential has neither sessionToken nor cookies")
	}
	return nil
}

// orderedStringMap decodes a JSON object of strings keeping key order
func orderedStringMap(raw json.RawMessage) ([]Secret, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object")
	}

	var out []Secret
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("cookie %q: %w", key, err)
		}
		out = append(out, Secret{Name: key, Value: value})
	}
	return out, nil
}
