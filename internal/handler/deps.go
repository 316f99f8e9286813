package handler

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"chatline/internal/app/relay"
	"chatline/internal/configs"
)

// AppDeps holds what the relay's handlers share.
type AppDeps struct {
	Hub    *relay.Hub
	Config *configs.ServerConfig

	// AdminHash is the bcrypt hash of the configured admin password.
	AdminHash []byte
}

// NewAppDeps hashes the configured admin password with cost and bundles the dependencies.
func NewAppDeps(cfg *configs.ServerConfig, hub *relay.Hub, cost int) (*AppDeps, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	return &AppDeps{
		Hub:       hub,
		Config:    cfg,
		AdminHash: hash,
	}, nil
}
