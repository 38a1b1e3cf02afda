package models

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionExpired  = errors.New("session expired")
)

var (
	ErrInvalidImage = errors.New("image payload is required")
	ErrQrGeneration = errors.New("error generating qr code")
)

var (
	ErrRedisGet = errors.New("redis get error")
	ErrRedisSet = errors.New("redis set error")
)

var (
	ErrDatabaseQuery  = errors.New("database query error")
	ErrDatabaseInsert = errors.New("database insert error")
)
