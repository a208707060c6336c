package crypto

import "errors"

// Canonicalization errors. A value that fails to canonicalize cannot be
// digested, so callers treat these as programming errors.
var (
	ErrNonFiniteFloat  = errors.New("canonical json: NaN and Inf have no encoding")
	ErrNonStringMapKey = errors.New("canonical json: object keys must be strings")
	ErrUnsupportedType = errors.New("canonical json: unsupported type")
	ErrKeyCollision    = errors.New("canonical json: keys collide after NFC normalization")
	ErrInvalidNumber   = errors.New("canonical json: malformed number")
)
