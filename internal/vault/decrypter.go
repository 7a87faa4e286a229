/*

This file contains the paper-mode decrypter. Ciphertext is a JSON weight
map; "decryption" is just deferred parsing, resolved when the operator or
a test calls Resolve. It stands in for the external decryption service in
dry runs without changing the vault's asynchronous completion contract.

*/

package vault

import (
	"encoding/json"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

// JSONDecrypter implements Decrypter over JSON-encoded weight maps.
type JSONDecrypter struct {
	mu      sync.Mutex
	pending map[string]pendingDecryption // keyed by requestID
}

type pendingDecryption struct {
	vaultID    string
	ciphertext []byte
}

// NewJSONDecrypter returns an empty paper-mode decrypter.
func NewJSONDecrypter() *JSONDecrypter {
	return &JSONDecrypter{pending: make(map[string]pendingDecryption)}
}

// RequestDecryption implements Decrypter. The ciphertext is held until
// Resolve delivers the completion event.
func (d *JSONDecrypter) RequestDecryption(vaultID string, ciphertext []byte) (string, error) {
	requestID := uuid.New().String()
	d.mu.Lock()
	d.pending[requestID] = pendingDecryption{
		vaultID:    vaultID,
		ciphertext: append([]byte(nil), ciphertext...),
	}
	d.mu.Unlock()
	return requestID, nil
}

// RequestIDFor returns the pending request id for a vault, if any.
func (d *JSONDecrypter) RequestIDFor(vaultID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for requestID, p := range d.pending {
		if p.vaultID == vaultID {
			return requestID, true
		}
	}
	return "", false
}

// Resolve parses the held ciphertext and delivers the result to the vault.
// A parse failure is delivered as an invalid result, not an error: the
// vault's tri-state flag is the contract for bad submissions.
func (d *JSONDecrypter) Resolve(requestID string, v *EncryptedVault) error {
	d.mu.Lock()
	p, ok := d.pending[requestID]
	delete(d.pending, requestID)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDecryption, requestID)
	}

	var weights map[string]string
	if err := json.Unmarshal(p.ciphertext, &weights); err != nil {
		return v.OnDecryptionResult(requestID, types.Intent{}, false)
	}

	intent := types.NewIntent()
	for asset, raw := range weights {
		weight, err := sdkmath.LegacyNewDecFromStr(raw)
		if err != nil {
			return v.OnDecryptionResult(requestID, types.Intent{}, false)
		}
		intent.Set(types.AssetID(asset), weight)
	}
	return v.OnDecryptionResult(requestID, intent, true)
}
