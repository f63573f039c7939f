package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/pion/logging"
)

// KeyStore holds the host's private keys. During authentication the
// connection layer tries each signer in order before falling back to
// the public-key prompt on the device.
type KeyStore struct {
	signers []Signer
	log     logging.LeveledLogger
}

// KeyStoreConfig configures a KeyStore.
type KeyStoreConfig struct {
	// KeyPaths lists private key files to load. Missing files are
	// skipped. If empty, DefaultKeyPath() is tried.
	KeyPaths []string

	// Generate creates and saves a fresh key at DefaultKeyPath() when no
	// key could be loaded.
	Generate bool

	// Comment is appended to exported public keys ("user@host").
	// Defaults to the current user and host.
	Comment string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultKeyPath returns the conventional adb key location,
// $HOME/.android/adbkey.
func DefaultKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".android", "adbkey"), nil
}

// NewKeyStore loads keys per the configuration.
func NewKeyStore(config KeyStoreConfig) (*KeyStore, error) {
	ks := &KeyStore{}
	if config.LoggerFactory != nil {
		ks.log = config.LoggerFactory.NewLogger("auth")
	}

	comment := config.Comment
	if comment == "" {
		comment = defaultComment()
	}

	paths := config.KeyPaths
	if len(paths) == 0 {
		if p, err := DefaultKeyPath(); err == nil {
			paths = []string{p}
		}
	}

	for _, path := range paths {
		key, err := LoadPrivateKey(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			if ks.log != nil {
				ks.log.Warnf("skipping key %s: %v", path, err)
			}
			continue
		}
		signer, err := NewSigner(key, comment)
		if err != nil {
			if ks.log != nil {
				ks.log.Warnf("skipping key %s: %v", path, err)
			}
			continue
		}
		ks.signers = append(ks.signers, signer)
		if ks.log != nil {
			ks.log.Debugf("loaded key %s", path)
		}
	}

	if len(ks.signers) == 0 && config.Generate {
		path, err := DefaultKeyPath()
		if err != nil {
			return nil, err
		}
		key, err := GenerateKey(path)
		if err != nil {
			return nil, err
		}
		signer, err := NewSigner(key, comment)
		if err != nil {
			return nil, err
		}
		ks.signers = append(ks.signers, signer)
		if ks.log != nil {
			ks.log.Infof("generated new key at %s", path)
		}
	}

	return ks, nil
}

// Signers returns the loaded signers in trial order.
func (ks *KeyStore) Signers() []Signer {
	return ks.signers
}

// LoadPrivateKey parses an RSA private key from a PEM file. Both the
// PKCS#8 encoding written by adb and the older PKCS#1 encoding are
// accepted.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotPEM, path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotRSA, parsed)
	}
	return key, nil
}

// GenerateKey creates a 2048-bit key, writes it to path in PKCS#8 PEM
// (plus the public half at path+".pub"), and returns it.
func GenerateKey(path string) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, ModulusSize*8)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, err
	}

	pub, err := EncodePublicKey(&key.PublicKey, defaultComment())
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path+".pub", pub, 0o644); err != nil {
		return nil, err
	}

	return key, nil
}

func defaultComment() string {
	name := "droidlink"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return name + "@" + host
}
