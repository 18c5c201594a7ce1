// Package security provisions the node's transport security material:
// the TLS key/certificate pair the engine serves, and the access-control
// rules file (pg_hba.conf) that mandates encrypted, authenticated
// connections.
package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/pgstack/pgstack/internal/fileutil"
)

// certValidity is the self-signed certificate lifetime. Replication peers
// connect with sslmode=require (encryption without chain verification),
// so rotation is an operator concern and a long window avoids surprise
// expiry mid-deployment.
const certValidity = 10 * 365 * 24 * time.Hour

// KeyFileName and CertFileName are the fixed file names the engine reads
// from its data directory (ssl_key_file / ssl_cert_file defaults).
const (
	KeyFileName  = "server.key"
	CertFileName = "server.crt"
)

// EnsureTLS generates the engine's TLS material at most once. If the key
// file already exists under dataDir the call is a no-op; otherwise an
// ECDSA P-256 key and a self-signed certificate bound to nodeName are
// written and ownership is fixed to the database principal (the engine
// refuses a key file it does not own). A nil owner skips the ownership
// fix, for unprivileged callers.
func EnsureTLS(log *slog.Logger, dataDir, nodeName string, owner *fileutil.Owner) error {
	keyPath := filepath.Join(dataDir, KeyFileName)
	certPath := filepath.Join(dataDir, CertFileName)

	if _, err := os.Stat(keyPath); err == nil {
		log.Debug("TLS key already present", "path", keyPath)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check TLS key: %w", err)
	}

	log.Info("generating TLS material", "node", nodeName, "path", keyPath)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate TLS key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate certificate serial: %w", err)
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: nodeName},
		DNSNames:     []string{nodeName},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal TLS key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write TLS key: %w", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("write TLS certificate: %w", err)
	}

	if owner != nil {
		if err := owner.Chown(keyPath, certPath); err != nil {
			return fmt.Errorf("fix TLS material ownership: %w", err)
		}
	}
	return nil
}
