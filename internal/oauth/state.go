package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

const SchemaVersion = 1

var ErrStateNotFound = errors.New("oauth state not found")

// State is the refresh state of a SmartThings OAuth-In SmartApp.
//
// SmartThings rotates the refresh token on every refresh, so the file is
// rewritten after each one. InstalledAppID is the app installation the token
// is bound to; it is informational and survives refreshes that omit it.
type State struct {
	SchemaVersion  int    `json:"schema_version"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	RefreshToken   string `json:"refresh_token"`
	Scope          string `json:"scope"`
	InstalledAppID string `json:"installed_app_id,omitempty"`
}

// Bootstrap is the operator-provided starting point: the SmartApp client
// credentials and, optionally, a refresh token obtained out of band.
type Bootstrap struct {
	SchemaVersion int    `json:"schema_version,omitempty"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	Scope         string `json:"scope,omitempty"`
}

// NewState seeds a state from bootstrap credentials and a freshly issued token.
func NewState(b Bootstrap, scope string, token *oauth2.Token) State {
	s := State{
		SchemaVersion: SchemaVersion,
		ClientID:      b.ClientID,
		ClientSecret:  b.ClientSecret,
		Scope:         scope,
	}
	s.Absorb(token)
	return s
}

// Absorb copies the fields SmartThings returns with a token response.
func (s *State) Absorb(token *oauth2.Token) {
	if token == nil {
		return
	}
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	if id, ok := token.Extra("installed_app_id").(string); ok && id != "" {
		s.InstalledAppID = id
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		s.Scope = scope
	}
}

func (s State) Validate() error {
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version: %d", s.SchemaVersion)
	}
	if s.ClientID == "" {
		return fmt.Errorf("state missing client_id")
	}
	if s.RefreshToken == "" {
		return fmt.Errorf("state missing refresh_token")
	}
	return nil
}

func (b Bootstrap) Validate() error {
	if b.SchemaVersion != 0 && b.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported bootstrap schema_version: %d", b.SchemaVersion)
	}
	if b.ClientID == "" {
		return fmt.Errorf("bootstrap missing client_id")
	}
	return nil
}

func LoadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrStateNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	return DecodeState(data)
}

func LoadBootstrap(path string) (Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bootstrap{}, fmt.Errorf("read bootstrap: %w", err)
	}
	return decode[Bootstrap](data, "bootstrap")
}

func DecodeState(data []byte) (State, error) {
	return decode[State](data, "state")
}

func decode[T interface{ Validate() error }](data []byte, what string) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", what, err)
	}
	if err := v.Validate(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// WriteState replaces the file atomically with mode 0600, so a crash mid-write
// never leaves a truncated refresh token behind.
func WriteState(path string, state State) error {
	if state.SchemaVersion == 0 {
		state.SchemaVersion = SchemaVersion
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".oauth-state-*")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
