package network

import "errors"

var (
	ErrConnectionClosed        = errors.New("connection closed")
	ErrInvalidTLSConfig        = errors.New("invalid TLS configuration")
	ErrKeepAliveTimeout        = errors.New("keep-alive timeout")
	ErrInvalidAddress          = errors.New("invalid address")
	ErrMaxRetriesExceeded      = errors.New("max retries exceeded")
	ErrInvalidBackoffConfig    = errors.New("invalid backoff configuration")
	ErrCertificateVerification = errors.New("certificate verification failed")
)
