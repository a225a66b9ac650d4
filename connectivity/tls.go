// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package connectivity

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	keySaltSize      = 8
	keyIterations    = 10000
	keyDerivedLength = 32
	aesGCMNonceSize  = 12
)

// TLSOption configures the TLS settings of a connection.
type TLSOption func(context.Context, *tls.Config) error

// WithCAFile trusts the PEM certificates in the file instead of the system
// pool.
func WithCAFile(caFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		pool, err := loadCACertPool(caFile)
		if err != nil {
			return err
		}
		cfg.RootCAs = pool
		return nil
	}
}

// WithClientCert presents the certificate and key for mutual TLS. If passFile
// is set, the key is decrypted with the password stored in it.
func WithClientCert(certFile, keyFile, passFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		var cert tls.Certificate
		var err error
		if passFile == "" {
			cert, err = tls.LoadX509KeyPair(certFile, keyFile)
		} else {
			cert, err = loadX509KeyPairWithPassword(certFile, keyFile, passFile)
		}
		if err != nil {
			return err
		}
		cfg.Certificates = []tls.Certificate{cert}
		return nil
	}
}

// WithServerName overrides the name used to verify the server certificate.
func WithServerName(name string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cfg.ServerName = name
		return nil
	}
}

func buildTLSConfig(
	ctx context.Context,
	hostname string,
	opts []TLSOption,
) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: hostname,
	}
	for _, opt := range opts {
		if err := opt(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadCACertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return pool, nil
}

// decryptPEMBlock decrypts a key stored as an 8-byte salt followed by an
// AES-GCM nonce and ciphertext. The AES key is derived with PBKDF2-SHA3-256.
func decryptPEMBlock(block *pem.Block, password []byte) ([]byte, error) {
	if block == nil {
		return nil, errors.New("PEM block is nil")
	}
	if len(block.Bytes) < keySaltSize {
		return nil, errors.New("PEM block is too short for salt")
	}

	salt := block.Bytes[:keySaltSize]
	key := pbkdf2.Key(
		password,
		salt,
		keyIterations,
		keyDerivedLength,
		sha3.New256,
	)
	return aesGCMDecrypt(block.Bytes[keySaltSize:], key)
}

func aesGCMDecrypt(encrypted, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(encrypted) < aesGCMNonceSize {
		return nil, errors.New("ciphertext in PEM block is too short")
	}
	nonce, ciphertext := encrypted[:aesGCMNonceSize], encrypted[aesGCMNonceSize:]

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func loadX509KeyPairWithPassword(
	certFile,
	keyFile,
	passFile string,
) (tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	password, err := os.ReadFile(passFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	encrypted, _ := pem.Decode(keyPEM)
	if encrypted == nil {
		return tls.Certificate{}, errors.New(
			"failed to decode PEM block containing private key",
		)
	}

	// x509.DecryptPEMBlock is deprecated and insecure, so keys use a
	// PBKDF2/AES-GCM envelope instead.
	der, err := decryptPEMBlock(encrypted, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	decrypted := pem.EncodeToMemory(&pem.Block{
		Type:  encrypted.Type,
		Bytes: der,
	})
	return tls.X509KeyPair(certPEM, decrypted)
}
