package google

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// TokenSet is the persisted access/refresh token pair.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// UnmarshalJSON also accepts "expiry_date" in epoch milliseconds, the form
// written by the Node.js Google client.
func (t *TokenSet) UnmarshalJSON(data []byte) error {
	type plain TokenSet
	var aux struct {
		plain
		ExpiryDate int64 `json:"expiry_date"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = TokenSet(aux.plain)
	if t.Expiry.IsZero() && aux.ExpiryDate > 0 {
		t.Expiry = time.UnixMilli(aux.ExpiryDate).UTC()
	}
	return nil
}

// usable reports whether the set can authenticate at all, now or after a refresh.
func (t *TokenSet) usable() bool {
	return t != nil && (t.AccessToken != "" || t.RefreshToken != "")
}

// OAuth2 converts the set to an *oauth2.Token carrying the scope as extra data.
func (t *TokenSet) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
	if t.Scope != "" {
		tok = tok.WithExtra(map[string]any{"scope": t.Scope})
	}
	return tok
}

// TokenSetFromOAuth2 converts tok. Fields the token endpoint left out of a
// refresh response (refresh token, scope) are carried over from previous.
func TokenSetFromOAuth2(tok *oauth2.Token, previous *TokenSet) *TokenSet {
	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry.UTC(),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		set.Scope = scope
	}
	if previous != nil {
		if set.RefreshToken == "" {
			set.RefreshToken = previous.RefreshToken
		}
		if set.Scope == "" {
			set.Scope = previous.Scope
		}
	}
	return set
}
