package api

import "time"

// LoginRequest is the request body for authentication.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse contains the JWT token after successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreatePeerRequest registers a peer in the directory.
type CreatePeerRequest struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint" binding:"required"`
	PublicKey   string `json:"public_key"`
	Endpoint    string `json:"endpoint"`
}
