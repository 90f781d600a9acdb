package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ErrPassphraseRequired is returned when the configured ssh key is
// encrypted and no passphrase has been supplied.
var ErrPassphraseRequired = errors.New("SSH key is encrypted - passphrase required")

const keyDerivationMessage = "thinkchat-credentials-v1"

// EncryptionManager seals credential files with an AES-256-GCM key derived
// from an ssh private key signature.
type EncryptionManager struct {
	sshKeyPath string
	passphrase string
	aesKey     []byte
}

func NewEncryptionManager(sshKeyPath string) *EncryptionManager {
	return &EncryptionManager{sshKeyPath: sshKeyPath}
}

func (e *EncryptionManager) SetPassphrase(passphrase string) {
	e.passphrase = passphrase
	e.aesKey = nil
}

// Initialize loads the ssh key and derives the AES key. It is called lazily
// by Encrypt and Decrypt.
func (e *EncryptionManager) Initialize() error {
	if e.aesKey != nil {
		return nil
	}
	if e.sshKeyPath == "" {
		return fmt.Errorf("no ssh key configured for credential encryption")
	}

	encrypted, err := IsSSHKeyEncrypted(e.sshKeyPath)
	if err != nil {
		return fmt.Errorf("failed to check SSH key: %w", err)
	}
	if Debug && DebugLog != nil {
		DebugLog.Printf("[EncryptionManager] Initialize: key encrypted=%v", encrypted)
	}
	if encrypted && e.passphrase == "" {
		return ErrPassphraseRequired
	}

	signer, err := LoadSSHSigner(e.sshKeyPath, e.passphrase)
	if err != nil {
		return fmt.Errorf("failed to load SSH key: %w", err)
	}

	// Sign a fixed message; the same key always yields the same AES key.
	sig, err := signer.Sign(rand.Reader, []byte(keyDerivationMessage))
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	sum := sha256.Sum256(sig.Blob)
	e.aesKey = sum[:]
	return nil
}

// Encrypt returns [nonce][ciphertext+tag].
func (e *EncryptionManager) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *EncryptionManager) Decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plaintext, err := gcm.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func (e *EncryptionManager) gcm() (cipher.AEAD, error) {
	if err := e.Initialize(); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(e.aesKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// IsSSHKeyEncrypted checks if an SSH private key is encrypted without attempting to decrypt it
func IsSSHKeyEncrypted(keyPath string) (bool, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return false, fmt.Errorf("failed to read SSH key: %w", err)
	}

	_, err = ssh.ParsePrivateKey(keyData)
	if err == nil {
		return false, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) || strings.Contains(err.Error(), "encrypted") {
		return true, nil
	}
	return false, fmt.Errorf("invalid SSH key: %w", err)
}

// LoadSSHSigner parses the private key at keyPath, using passphrase when it
// is non-empty.
func LoadSSHSigner(keyPath, passphrase string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}
	if passphrase == "" {
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key (wrong passphrase?): %w", err)
	}
	return signer, nil
}
