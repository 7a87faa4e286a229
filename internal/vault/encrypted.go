/*

This file contains the encrypted-intent vault variant. Curator weights
stay opaque: the vault holds ciphertext and a tri-state validity flag, and
an external decrypter reports the plaintext through an asynchronous
completion callback. The engine consumes it through the same capability
interface as the transparent vault; while validity is pending or invalid,
GetIntent reports no readable intent and the vault simply holds its
current portfolio through the epoch.

*/

package vault

import (
	"errors"
	"fmt"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// Error definitions for the encrypted-intent path
var (
	ErrPlaintextIntent   = errors.New("encrypted vault only accepts ciphertext intents")
	ErrEmptyCiphertext   = errors.New("ciphertext cannot be empty")
	ErrUnknownDecryption = errors.New("no pending decryption with that request id")
	ErrDecrypterRequired = errors.New("encrypted vault requires a decrypter")
)

// IntentValidity is the tri-state decryption outcome of a ciphertext
// intent.
type IntentValidity uint8

const (
	IntentPending IntentValidity = iota
	IntentValid
	IntentInvalid
)

func (s IntentValidity) String() string {
	switch s {
	case IntentPending:
		return "pending"
	case IntentValid:
		return "valid"
	case IntentInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Decrypter requests asynchronous decryption of a ciphertext intent. The
// result arrives later through OnDecryptionResult.
type Decrypter interface {
	RequestDecryption(vaultID string, ciphertext []byte) (requestID string, err error)
}

// EncryptedVault wraps the transparent vault with an opaque intent path.
type EncryptedVault struct {
	*TransparentVault

	decrypter  Decrypter
	ciphertext []byte
	validity   IntentValidity
	requestID  string
	decrypted  types.Intent
	hasResult  bool
}

// NewEncryptedVault builds an encrypted vault on top of the transparent
// implementation.
func NewEncryptedVault(cfg Config, decrypter Decrypter) (*EncryptedVault, error) {
	if decrypter == nil {
		return nil, ErrDecrypterRequired
	}
	base, err := NewTransparentVault(cfg)
	if err != nil {
		return nil, err
	}
	return &EncryptedVault{
		TransparentVault: base,
		decrypter:        decrypter,
		validity:         IntentInvalid, // nothing submitted yet
	}, nil
}

// SubmitIntent rejects plaintext submissions on the encrypted variant.
func (e *EncryptedVault) SubmitIntent(caller string, intent types.Intent) error {
	return ErrPlaintextIntent
}

// SubmitEncryptedIntent stores the ciphertext and dispatches a decryption
// request. Until the completion callback arrives the intent is pending
// and unreadable.
func (e *EncryptedVault) SubmitEncryptedIntent(caller string, ciphertext []byte) error {
	if len(ciphertext) == 0 {
		return ErrEmptyCiphertext
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.curator {
		return fmt.Errorf("%w: %s is not the curator", ErrUnauthorized, caller)
	}

	requestID, err := e.decrypter.RequestDecryption(e.id, ciphertext)
	if err != nil {
		return fmt.Errorf("decryption dispatch failed: %w", err)
	}

	e.ciphertext = append([]byte(nil), ciphertext...)
	e.validity = IntentPending
	e.requestID = requestID
	e.hasResult = false
	e.logger.Info().Str("request_id", requestID).Msg("Encrypted intent submitted, decryption pending")
	return nil
}

// OnDecryptionResult is the completion event from the external decrypter.
// A structurally valid plaintext (whitelisted assets, weights summing to
// exactly 100%) flips validity to valid; anything else marks the
// submission invalid without touching the previous state further.
func (e *EncryptedVault) OnDecryptionResult(requestID string, intent types.Intent, ok bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.validity != IntentPending || requestID != e.requestID {
		return fmt.Errorf("%w: %s", ErrUnknownDecryption, requestID)
	}

	if !ok || e.validateIntent(intent) != nil {
		e.validity = IntentInvalid
		e.hasResult = true
		e.logger.Warn().Str("request_id", requestID).Msg("Encrypted intent marked invalid")
		return nil
	}

	e.decrypted = intent.Clone()
	e.validity = IntentValid
	e.hasResult = true
	e.logger.Info().Str("request_id", requestID).Msg("Encrypted intent decrypted and validated")
	return nil
}

// GetIntent implements Vault. Only a valid decrypted intent is readable.
func (e *EncryptedVault) GetIntent() (types.Intent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.validity != IntentValid {
		return types.Intent{}, fmt.Errorf("%w: validity is %s", ErrIntentUnavailable, e.validity)
	}
	return e.decrypted.Clone(), nil
}

// IntentValidity returns the current tri-state decryption outcome.
func (e *EncryptedVault) IntentValidity() IntentValidity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validity
}
