package auth

import (
	"errors"
	"time"
)

type Operator struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	VehicleID string    `json:"vehicle_id"`
	PinHash   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegisterRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	VehicleID string `json:"vehicle_id"`
	PIN       string `json:"pin"`
}

type LoginRequest struct {
	Code string `json:"code"`
	PIN  string `json:"pin"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

var (
	ErrMissingFields       = errors.New("code, name and pin required")
	ErrPinTooShort         = errors.New("pin too short")
	ErrCodeTaken           = errors.New("operator code already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	ErrTokenInvalid        = errors.New("token invalid")
)
