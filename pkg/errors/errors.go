package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrAssetIDMissing     = errors.New("asset id is missing")
	ErrAssetPathMissing   = errors.New("asset path is missing")
	ErrAssetNotFound      = errors.New("asset is not loaded")
	ErrAssetAlreadyLoaded = errors.New("asset is already loaded")
	ErrAssetFileMissing   = errors.New("asset file does not exist")
	ErrInvalidFormat      = errors.New("unsupported audio format")
	ErrEngineReleased     = errors.New("engine has been released")
	ErrBridgeClosed       = errors.New("bridge has been closed")
)

// BridgeError wraps errors with the failing operation and asset id
type BridgeError struct {
	Op      string // Operation that failed
	AssetID string // Asset id if applicable
	Err     error  // Underlying error
}

func (e *BridgeError) Error() string {
	if e.AssetID != "" {
		return fmt.Sprintf("%s failed for asset %s: %v", e.Op, e.AssetID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// NewBridgeError creates a new BridgeError
func NewBridgeError(op, assetID string, err error) *BridgeError {
	return &BridgeError{Op: op, AssetID: assetID, Err: err}
}

// ResolveError represents a failure to resolve an asset path to a source
type ResolveError struct {
	Path string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve error at %s: %v", e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// ScanError represents a failure while scanning the public directory
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan error at %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}
