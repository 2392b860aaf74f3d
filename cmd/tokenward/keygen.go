// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/tls"
	"github.com/tokenward/tokenward/internal/xdg"
)

// Key material file names written by keygen.
const (
	signingKeyFileName    = "signing.pem"
	verifyKeyFileName     = "verify.pem"
	refreshSecretFileName = "refresh.secret"
)

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	var (
		outDir   string
		force    bool
		withTLS  bool
		tlsHosts []string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 key pair and a refresh token secret",
		Long: `Generate the key material tokenward needs: an Ed25519 signing key
(PKCS#8 PEM), its public half (PKIX PEM) and a random HMAC secret for
refresh token hashes. Existing files are kept unless --force is given.
Without --out the files go to $XDG_CONFIG_HOME/tokenward/keys.

With --tls a server certificate for the gRPC listener is written as well,
signed by a local CA that is created on first use and reused afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outDir == "" {
				dir, err := xdg.KeysDir()
				if err != nil {
					return err
				}
				outDir = dir
			}
			if withTLS && !force {
				for _, name := range []string{tls.ServerCertFile, tls.ServerKeyFile} {
					if err := refuseExisting(filepath.Join(outDir, name)); err != nil {
						return err
					}
				}
			}
			if err := runKeygen(cmd, outDir, force); err != nil {
				return err
			}
			if withTLS {
				return runKeygenTLS(cmd, outDir, tlsHosts)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "directory to write the key files to")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")
	cmd.Flags().BoolVar(&withTLS, "tls", false, "also write a gRPC server certificate")
	cmd.Flags().StringSliceVar(&tlsHosts, "tls-host", tls.DefaultHosts, "DNS name or IP of the server certificate (repeatable)")

	return cmd
}

func runKeygen(cmd *cobra.Command, outDir string, force bool) error {
	privPEM, pubPEM, err := auth.GenerateKeyPairPEM()
	if err != nil {
		return err
	}
	secret, err := generateSecret()
	if err != nil {
		return err
	}

	if err := xdg.EnsureDir(outDir); err != nil {
		return oops.Code("KEYGEN_WRITE_FAILED").With("dir", outDir).Wrap(err)
	}

	files := []struct {
		name string
		data []byte
		perm fs.FileMode
	}{
		{signingKeyFileName, privPEM, 0o600},
		{verifyKeyFileName, pubPEM, 0o644},
		{refreshSecretFileName, []byte(secret + "\n"), 0o600},
	}

	if !force {
		for _, f := range files {
			if err := refuseExisting(filepath.Join(outDir, f.name)); err != nil {
				return err
			}
		}
	}

	for _, f := range files {
		path := filepath.Join(outDir, f.name)
		if err := os.WriteFile(path, f.data, f.perm); err != nil {
			return oops.Code("KEYGEN_WRITE_FAILED").With("path", path).Wrap(err)
		}
		cmd.Println("wrote", path)
	}
	return nil
}

// runKeygenTLS writes a server certificate signed by the CA in outDir,
// creating the CA when there is none. Existing server files are replaced.
func runKeygenTLS(cmd *cobra.Command, outDir string, hosts []string) error {
	ca, err := tls.LoadCA(outDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if ca, err = tls.GenerateCA("tokenward CA"); err != nil {
			return err
		}
		cmd.Println("created CA in", outDir)
	case err != nil:
		return err
	}

	server, err := tls.GenerateServerCert(ca, hosts)
	if err != nil {
		return err
	}
	if err := tls.SaveCertificates(outDir, ca, server); err != nil {
		return err
	}
	cmd.Println("wrote", filepath.Join(outDir, tls.ServerCertFile))
	cmd.Println("wrote", filepath.Join(outDir, tls.ServerKeyFile))
	return nil
}

func refuseExisting(path string) error {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return oops.Code("KEYGEN_FILE_EXISTS").With("path", path).
			Errorf("%s already exists; pass --force to overwrite", path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return oops.Code("KEYGEN_WRITE_FAILED").With("path", path).Wrap(err)
	}
}

// generateSecret returns MinTokenSecretBytes random bytes, base64url encoded.
func generateSecret() (string, error) {
	buf := make([]byte, auth.MinTokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("KEYGEN_FAILED").With("operation", "generate secret").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
