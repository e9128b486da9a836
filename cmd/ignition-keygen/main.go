package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ignition-keygen generates the RSA keypair the command protocol runs
// on: the private key stays with the control plane, the public key is
// baked into droplet images for the agent.
func main() {
	var (
		dir  = flag.String("dir", "keys", "output directory")
		bits = flag.Int("bits", 4096, "RSA key size")
	)
	flag.Parse()

	if err := generate(*dir, *bits); err != nil {
		slog.Error("Key generation failed", "error", err)
		os.Exit(1)
	}
}

func generate(dir string, bits int) error {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	privatePath := filepath.Join(dir, "command.pem")
	if err := writePEM(privatePath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0o600); err != nil {
		return err
	}

	publicBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	publicPath := filepath.Join(dir, "command.pub.pem")
	if err := writePEM(publicPath, "PUBLIC KEY", publicBytes, 0o644); err != nil {
		return err
	}

	slog.Info("Generated command signing keypair",
		"private_key", privatePath,
		"public_key", publicPath,
		"bits", bits)
	return nil
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
