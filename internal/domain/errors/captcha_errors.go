package errors

import "errors"

var (
	// ErrSessionNotFound indicates that no session matches the client token
	ErrSessionNotFound = errors.New("captcha session not found")

	// ErrAlreadyResolved indicates that the session already has a terminal log
	ErrAlreadyResolved = errors.New("captcha session already resolved")

	// ErrQuotaExhausted indicates that the credential owner has no tokens left
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrNoProblemAvailable indicates that no non-expired problem exists for the difficulty
	ErrNoProblemAvailable = errors.New("no captcha problem available")

	// ErrCredentialNotFound indicates that the API key is unknown, inactive, deleted or expired
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrJobNotFound indicates that the verification handle is unknown or expired
	ErrJobNotFound = errors.New("verification job not found")
)
