package httpclient

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedPair returns a PEM certificate and PKCS#8 key valid for
// 127.0.0.1.
func selfSignedPair(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "courier-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IsCA:         true,

		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestCertificate_TLSConfig(t *testing.T) {
	certPEM, keyPEM := selfSignedPair(t)

	tests := []struct {
		name        string
		cert        *Certificate
		wantRoots   bool
		wantCerts   int
		wantErrorIs error
		wantErr     bool
	}{
		{
			name:      "given CA only, then sets root pool",
			cert:      &Certificate{CA: certPEM},
			wantRoots: true,
		},
		{
			name:      "given cert and key, then loads the pair",
			cert:      &Certificate{Cert: certPEM, Key: keyPEM},
			wantCerts: 1,
		},
		{
			name:      "given CA, cert and key, then sets both",
			cert:      &Certificate{CA: certPEM, Cert: certPEM, Key: keyPEM},
			wantRoots: true,
			wantCerts: 1,
		},
		{
			name:        "given PFX with cert, then returns ErrCertificateConflict",
			cert:        &Certificate{PFX: []byte{0x30}, Cert: certPEM},
			wantErrorIs: ErrCertificateConflict,
		},
		{
			name:        "given PFX with key, then returns ErrCertificateConflict",
			cert:        &Certificate{PFX: []byte{0x30}, Key: keyPEM},
			wantErrorIs: ErrCertificateConflict,
		},
		{
			name:    "given invalid CA, then fails",
			cert:    &Certificate{CA: []byte("not pem")},
			wantErr: true,
		},
		{
			name:    "given invalid PFX, then fails",
			cert:    &Certificate{PFX: []byte("not pfx"), Passphrase: "x"},
			wantErr: true,
		},
		{
			name:    "given key without cert, then fails",
			cert:    &Certificate{Key: keyPEM},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.cert.TLSConfig()

			switch {
			case tt.wantErrorIs != nil:
				require.ErrorIs(t, err, tt.wantErrorIs)
				return
			case tt.wantErr:
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
			assert.Equal(t, tt.wantRoots, cfg.RootCAs != nil)
			assert.Len(t, cfg.Certificates, tt.wantCerts)
		})
	}
}

func TestCertificate_TLSConfig_Nil(t *testing.T) {
	var cert *Certificate

	cfg, err := cert.TLSConfig()

	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestCertificate_EncryptedKey(t *testing.T) {
	certPEM, keyPEM := selfSignedPair(t)

	block, _ := pem.Decode(keyPEM)
	require.NotNil(t, block)
	//nolint:staticcheck // legacy encryption is what the passphrase path reads
	encrypted, err := x509.EncryptPEMBlock(rand.Reader, block.Type, block.Bytes, []byte("secret"), x509.PEMCipherAES256)
	require.NoError(t, err)
	encryptedPEM := pem.EncodeToMemory(encrypted)

	t.Run("given correct passphrase, then decrypts the key", func(t *testing.T) {
		cfg, err := (&Certificate{Cert: certPEM, Key: encryptedPEM, Passphrase: "secret"}).TLSConfig()

		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
	})

	t.Run("given wrong passphrase, then fails", func(t *testing.T) {
		_, err := (&Certificate{Cert: certPEM, Key: encryptedPEM, Passphrase: "wrong"}).TLSConfig()

		require.Error(t, err)
	})

	t.Run("given passphrase on plain key, then uses the key as-is", func(t *testing.T) {
		cfg, err := (&Certificate{Cert: certPEM, Key: keyPEM, Passphrase: "unused"}).TLSConfig()

		require.NoError(t, err)
		assert.Len(t, cfg.Certificates, 1)
	})
}

func TestCertificate_Fingerprint(t *testing.T) {
	a := &Certificate{CA: []byte("a"), Cert: []byte("b")}
	same := &Certificate{CA: []byte("a"), Cert: []byte("b")}
	shifted := &Certificate{CA: []byte("ab")}

	assert.Equal(t, a.fingerprint(), same.fingerprint())
	assert.NotEqual(t, a.fingerprint(), shifted.fingerprint())
}

func TestDispatch_CertificateTrustsServer(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"secure":true}`))
	}))
	defer server.Close()

	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	pool := NewPool("tls", DefaultConfig())
	client, _ := newTestClient(t, WithPool(pool))

	t.Run("given server CA, then the call succeeds", func(t *testing.T) {
		resp, err := client.Request("Secure").
			Certificate(&Certificate{CA: caPEM}).
			Get(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"secure": true}, resp.Body)
		assert.Equal(t, 1, pool.Stats().CertificateTransports)
	})

	t.Run("given no CA, then the handshake fails", func(t *testing.T) {
		_, err := client.Request("Insecure").Get(context.Background(), server.URL)

		require.Error(t, err)
		assert.Equal(t, ErrorTypeTLSError, classifyError(err))
	})
}
