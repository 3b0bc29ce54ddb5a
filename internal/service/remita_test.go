package service

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniosun/tacdra-api/pkg/config"
)

func TestRemitaWebhookSignature(t *testing.T) {
	gateway := NewRemitaGateway(config.RemitaConfig{APIKey: "demo-key"}, nil)
	body := []byte(`{"rrr":"280000000001","status":"01"}`)
	sum := sha512.Sum512(append(body, []byte("demo-key")...))
	signature := hex.EncodeToString(sum[:])

	require.True(t, gateway.WebhookSignatureValid(body, signature))
	require.True(t, gateway.WebhookSignatureValid(body, "  "+strings.ToUpper(signature)+"  "))
	require.False(t, gateway.WebhookSignatureValid(body, "deadbeef"))
	require.False(t, gateway.WebhookSignatureValid([]byte(`{"rrr":"tampered","status":"01"}`), signature))
}

func TestSandboxGatewayAcceptsAnySignature(t *testing.T) {
	gateway := NewSandboxGateway(nil)
	require.True(t, gateway.WebhookSignatureValid([]byte(`{}`), "anything"))
}
