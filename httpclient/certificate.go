package httpclient

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// ErrCertificateConflict is returned when a Certificate carries both a PFX
// bundle and a separate Cert/Key pair.
var ErrCertificateConflict = errors.New("certificate: pfx and cert/key are mutually exclusive")

// Certificate is client TLS material forwarded to the transport for https
// targets. All byte fields hold PEM data except PFX, which is a DER-encoded
// PKCS#12 bundle.
//
// Example - mutual TLS with a PEM pair:
//
//	resp, err := client.Request("GetAccount").
//	    Certificate(&httpclient.Certificate{
//	        CA:   caPEM,
//	        Cert: certPEM,
//	        Key:  keyPEM,
//	    }).
//	    Get(ctx, "https://bank.internal/accounts/42")
type Certificate struct {
	// CA holds one or more PEM certificates used to verify the server.
	// When empty the system roots are used.
	CA []byte

	// Cert is the PEM client certificate chain.
	Cert []byte

	// Key is the PEM private key for Cert. It may be encrypted with
	// Passphrase.
	Key []byte

	// Passphrase decrypts Key or PFX.
	Passphrase string

	// PFX is a PKCS#12 bundle holding the client key and certificate.
	PFX []byte
}

// TLSConfig builds the tls.Config for this certificate.
func (c *Certificate) TLSConfig() (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}
	if len(c.PFX) > 0 && (len(c.Cert) > 0 || len(c.Key) > 0) {
		return nil, ErrCertificateConflict
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if len(c.CA) > 0 {
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(c.CA) {
			return nil, errors.New("certificate: no valid CA certificates found")
		}
		cfg.RootCAs = roots
	}

	switch {
	case len(c.PFX) > 0:
		key, leaf, err := pkcs12.Decode(c.PFX, c.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("certificate: decoding pfx: %w", err)
		}
		cfg.Certificates = []tls.Certificate{{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		}}
	case len(c.Cert) > 0 || len(c.Key) > 0:
		keyPEM, err := c.decryptKey()
		if err != nil {
			return nil, err
		}
		pair, err := tls.X509KeyPair(c.Cert, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("certificate: loading key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	return cfg, nil
}

// decryptKey returns Key with legacy PEM encryption removed.
func (c *Certificate) decryptKey() ([]byte, error) {
	if c.Passphrase == "" {
		return c.Key, nil
	}
	block, _ := pem.Decode(c.Key)
	//nolint:staticcheck // legacy RFC 1423 keys are what passphrase-protected PEM files contain
	if block == nil || !x509.IsEncryptedPEMBlock(block) {
		return c.Key, nil
	}
	//nolint:staticcheck // see above
	der, err := x509.DecryptPEMBlock(block, []byte(c.Passphrase))
	if err != nil {
		return nil, fmt.Errorf("certificate: decrypting key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der}), nil
}

// fingerprint identifies the material for transport caching.
func (c *Certificate) fingerprint() string {
	h := sha256.New()
	for _, part := range [][]byte{c.CA, c.Cert, c.Key, []byte(c.Passphrase), c.PFX} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
