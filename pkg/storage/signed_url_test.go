package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("doc-1", "transcripts/doc-1.pdf")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	docID, relPath, _, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "doc-1", docID)
	require.Equal(t, "transcripts/doc-1.pdf", relPath)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("doc-1", "transcripts/doc-1.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token+"x", false)
	require.Error(t, err)

	other := NewSignedURLSigner("different", time.Minute)
	_, _, _, err = other.Parse(token, false)
	require.Error(t, err)
}
