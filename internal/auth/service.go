package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-triplog/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

const Schema = `
CREATE TABLE IF NOT EXISTS operators (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	vehicle_id TEXT NOT NULL DEFAULT '',
	pin_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS refresh_tokens (
	id TEXT PRIMARY KEY,
	operator_id TEXT NOT NULL REFERENCES operators(id) ON DELETE CASCADE,
	token TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ
);`

type Service struct {
	secret    []byte
	db        db.Querier
	pinMinLen int
}

type Claims struct {
	OperatorID string `json:"operator_id"`
	jwt.RegisteredClaims
}

var (
	signTokenFn       = (*Service).signToken
	hashPinFn         = bcrypt.GenerateFromPassword
	parseWithClaimsFn = jwt.ParseWithClaims
)

func NewService(secret string, db db.Querier, pinMinLen int) *Service {
	if pinMinLen <= 0 {
		pinMinLen = 4
	}
	return &Service{
		secret:    []byte(secret),
		db:        db,
		pinMinLen: pinMinLen,
	}
}

func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate operators: %w", err)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Operator, TokenResponse, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Code == "" || req.Name == "" || req.PIN == "" {
		return Operator{}, TokenResponse{}, ErrMissingFields
	}
	if len(req.PIN) < s.pinMinLen {
		return Operator{}, TokenResponse{}, ErrPinTooShort
	}
	hash, err := hashPinFn([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		return Operator{}, TokenResponse{}, err
	}

	op := Operator{
		ID:        uuid.NewString(),
		Code:      req.Code,
		Name:      req.Name,
		VehicleID: req.VehicleID,
		PinHash:   string(hash),
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO operators (id, code, name, vehicle_id, pin_hash)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at
	`, op.ID, op.Code, op.Name, op.VehicleID, op.PinHash)
	if err := row.Scan(&op.CreatedAt, &op.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Operator{}, TokenResponse{}, ErrCodeTaken
		}
		return Operator{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, op.ID)
	if err != nil {
		return Operator{}, TokenResponse{}, err
	}
	return op, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Operator, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, code, name, vehicle_id, pin_hash, created_at, updated_at
		FROM operators WHERE code = $1
	`, strings.TrimSpace(req.Code))

	var op Operator
	if err := row.Scan(&op.ID, &op.Code, &op.Name, &op.VehicleID, &op.PinHash, &op.CreatedAt, &op.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operator{}, TokenResponse{}, ErrInvalidCredentials
		}
		return Operator{}, TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PinHash), []byte(req.PIN)); err != nil {
		return Operator{}, TokenResponse{}, ErrInvalidCredentials
	}

	tokens, err := s.GenerateTokens(ctx, op.ID)
	if err != nil {
		return Operator{}, TokenResponse{}, err
	}
	return op, tokens, nil
}

func (s *Service) GenerateTokens(ctx context.Context, operatorID string) (TokenResponse, error) {
	access, err := signTokenFn(s, operatorID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, operatorID, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, operatorID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}

	operatorID, expiresAt, err := s.lookupRefreshToken(ctx, token)
	if err != nil || operatorID != claims.OperatorID || time.Now().After(expiresAt) {
		return "", ErrRefreshTokenInvalid
	}
	return claims.OperatorID, nil
}

// Revoke marks a refresh token as unusable. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = now()
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	return err
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.OperatorID, nil
}

func (s *Service) signToken(operatorID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		OperatorID: operatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, operatorID string, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, operator_id, token, expires_at)
		VALUES ($1,$2,$3,$4)
	`, uuid.NewString(), operatorID, token, time.Now().Add(ttl))
	return err
}

func (s *Service) lookupRefreshToken(ctx context.Context, token string) (string, time.Time, error) {
	row := s.db.QueryRow(ctx, `
		SELECT operator_id, expires_at
		FROM refresh_tokens
		WHERE token = $1 AND revoked_at IS NULL
	`, token)
	var operatorID string
	var expiresAt time.Time
	if err := row.Scan(&operatorID, &expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return operatorID, expiresAt, nil
}
