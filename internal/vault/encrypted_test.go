package vault

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/OrionFinanceAI/orion-engine/internal/types"
)

func newEncryptedTestVault(t *testing.T) (*EncryptedVault, *JSONDecrypter) {
	t.Helper()
	decrypter := NewJSONDecrypter()
	v, err := NewEncryptedVault(testConfig(), decrypter)
	require.NoError(t, err)
	return v, decrypter
}

func TestNewEncryptedVault_RequiresDecrypter(t *testing.T) {
	_, err := NewEncryptedVault(testConfig(), nil)
	require.ErrorIs(t, err, ErrDecrypterRequired)
}

func TestEncryptedVault_RejectsPlaintextIntent(t *testing.T) {
	v, _ := newEncryptedTestVault(t)
	intent := types.NewIntent()
	intent.Set("ATOM", sdkmath.LegacyOneDec())
	require.ErrorIs(t, v.SubmitIntent("curator", intent), ErrPlaintextIntent)
}

func TestSubmitEncryptedIntent_Validation(t *testing.T) {
	v, _ := newEncryptedTestVault(t)

	require.ErrorIs(t, v.SubmitEncryptedIntent("curator", nil), ErrEmptyCiphertext)
	require.ErrorIs(t, v.SubmitEncryptedIntent("mallory", []byte(`{}`)), ErrUnauthorized)
}

func TestEncryptedIntent_ValidLifecycle(t *testing.T) {
	v, decrypter := newEncryptedTestVault(t)

	ciphertext := []byte(`{"ATOM":"0.5","OSMO":"0.5"}`)
	require.NoError(t, v.SubmitEncryptedIntent("curator", ciphertext))
	require.Equal(t, IntentPending, v.IntentValidity())

	// Pending means unreadable.
	_, err := v.GetIntent()
	require.ErrorIs(t, err, ErrIntentUnavailable)

	requestID, ok := decrypter.RequestIDFor("vault-1")
	require.True(t, ok)
	require.NoError(t, decrypter.Resolve(requestID, v))

	require.Equal(t, IntentValid, v.IntentValidity())
	intent, err := v.GetIntent()
	require.NoError(t, err)
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("0.5"), intent.Weights["ATOM"])
	require.Equal(t, sdkmath.LegacyMustNewDecFromStr("0.5"), intent.Weights["OSMO"])
}

func TestEncryptedIntent_MalformedCiphertextMarksInvalid(t *testing.T) {
	v, decrypter := newEncryptedTestVault(t)

	require.NoError(t, v.SubmitEncryptedIntent("curator", []byte(`not json`)))
	requestID, ok := decrypter.RequestIDFor("vault-1")
	require.True(t, ok)
	require.NoError(t, decrypter.Resolve(requestID, v))

	require.Equal(t, IntentInvalid, v.IntentValidity())
	_, err := v.GetIntent()
	require.ErrorIs(t, err, ErrIntentUnavailable)
}

func TestEncryptedIntent_BadWeightsMarkInvalid(t *testing.T) {
	v, decrypter := newEncryptedTestVault(t)

	// Parses fine but sums to 90%, so validation fails.
	require.NoError(t, v.SubmitEncryptedIntent("curator", []byte(`{"ATOM":"0.9"}`)))
	requestID, ok := decrypter.RequestIDFor("vault-1")
	require.True(t, ok)
	require.NoError(t, decrypter.Resolve(requestID, v))

	require.Equal(t, IntentInvalid, v.IntentValidity())
}

func TestOnDecryptionResult_UnknownRequest(t *testing.T) {
	v, _ := newEncryptedTestVault(t)
	err := v.OnDecryptionResult("bogus", types.Intent{}, true)
	require.ErrorIs(t, err, ErrUnknownDecryption)
}

func TestEncryptedIntent_ResubmissionReplacesPending(t *testing.T) {
	v, decrypter := newEncryptedTestVault(t)

	require.NoError(t, v.SubmitEncryptedIntent("curator", []byte(`{"ATOM":"1.0"}`)))
	first, ok := decrypter.RequestIDFor("vault-1")
	require.True(t, ok)

	// A second submission supersedes the first; its completion is stale
	// and rejected without touching the pending state.
	require.NoError(t, v.SubmitEncryptedIntent("curator", []byte(`{"OSMO":"1.0"}`)))
	err := decrypter.Resolve(first, v)
	require.ErrorIs(t, err, ErrUnknownDecryption)
	require.Equal(t, IntentPending, v.IntentValidity())
}
