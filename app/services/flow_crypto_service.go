package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// FlowCrypto implements the encrypted exchange with gateway-hosted forms.
// Each request carries an RSA-wrapped AES session key; the response is
// encrypted under the same key with the bitwise complement of the request
// IV, which is how the form client distinguishes response material from a
// replayed request.
type FlowCrypto interface {
	GenerateKeyPair(bits int) (publicPEM, privatePEM string, err error)
	DecryptRequest(privatePEM, encryptedAESKey, encryptedFlowData, initialVector string) (plaintext, aesKey, iv []byte, err error)
	EncryptResponse(aesKey, iv, response []byte) (string, error)
}

// FlowCryptoImpl implements FlowCrypto
type FlowCryptoImpl struct{}

// NewFlowCrypto creates a new flow crypto service
func NewFlowCrypto() FlowCrypto {
	return &FlowCryptoImpl{}
}

// GenerateKeyPair creates an RSA key pair encoded as PKCS#8 private and
// PKIX public PEM blocks. The public half is registered with the gateway.
func (f *FlowCryptoImpl) GenerateKeyPair(bits int) (string, string, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return string(pubPEM), string(privPEM), nil
}

// DecryptRequest unwraps the AES session key with RSA-OAEP (SHA-256) and
// opens the request body with AES-GCM using the request IV as nonce. The
// session key and IV are returned for encrypting the response.
func (f *FlowCryptoImpl) DecryptRequest(privatePEM, encryptedAESKey, encryptedFlowData, initialVector string) ([]byte, []byte, []byte, error) {
	privateKey, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, nil, nil, err
	}

	wrappedKey, err := base64.StdEncoding.DecodeString(encryptedAESKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decode encrypted AES key: %w", err)
	}
	body, err := base64.StdEncoding.DecodeString(encryptedFlowData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decode encrypted flow data: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(initialVector)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decode initial vector: %w", err)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrappedKey, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to unwrap AES key: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, body, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decrypt flow data: %w", err)
	}
	return plaintext, aesKey, iv, nil
}

// EncryptResponse seals the response under the request's session key with
// every IV bit flipped, and returns base64(ciphertext || tag).
func (f *FlowCryptoImpl) EncryptResponse(aesKey, iv, response []byte) (string, error) {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = ^b
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(flipped))
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := gcm.Seal(nil, flipped, response, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// parsePrivateKey accepts PKCS#8 and PKCS#1 PEM private keys
func parsePrivateKey(privatePEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}
