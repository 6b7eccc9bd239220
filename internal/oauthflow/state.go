// Package oauthflow persists state produced by interactive OAuth flows.
package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/internal/oauth"
)

// PersistResult reports where the state ended up.
type PersistResult struct {
	StatePath string
	BlobSaved bool
}

// PersistOptions controls persistence behavior.
type PersistOptions struct {
	StatePathOverride string
	SkipBlob          bool
}

// StatePath picks the override, then smartthings.oauth.state_path, then the declaration default.
func StatePath(cfg *config.Config, decl oauth.Declaration, override string) string {
	if override != "" {
		return override
	}
	if cfg != nil && cfg.SmartThings.OAuth != nil && cfg.SmartThings.OAuth.StatePath != "" {
		return cfg.SmartThings.OAuth.StatePath
	}
	return decl.StatePath
}

// PersistState writes state to disk and, unless skipped, to blob storage.
func PersistState(ctx context.Context, cfg *config.Config, decl oauth.Declaration, state oauth.State, blob oauth.BlobStore, opts PersistOptions) (PersistResult, error) {
	statePath := StatePath(cfg, decl, opts.StatePathOverride)
	if statePath == "" {
		return PersistResult{}, fmt.Errorf("state path missing")
	}
	if state.Scope == "" {
		state.Scope = decl.Scope()
	}
	if err := oauth.WriteState(statePath, state); err != nil {
		return PersistResult{}, err
	}

	result := PersistResult{StatePath: statePath}
	if opts.SkipBlob || blob == nil {
		return result, nil
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return result, err
	}
	if err := blob.Save(ctx, decl.Provider, payload); err != nil {
		return result, fmt.Errorf("blob persist: %w", err)
	}
	result.BlobSaved = true
	return result, nil
}

// BlobFromConfig returns the configured S3 store, or nil when blob storage is off.
func BlobFromConfig(cfg *config.Config) (oauth.BlobStore, error) {
	if cfg == nil || cfg.Blob == nil {
		return nil, nil
	}
	return oauth.NewS3Store(cfg.Blob)
}
