// Package sftp provides a store over a remote file tree reached through
// SFTP, for evaluation databases living on compute clusters or archive
// hosts without object storage.
//
// Basic usage with password authentication:
//
//	store, err := sftp.New(sftp.Config{
//	    Host:     "archive.example.com",
//	    User:     "eval",
//	    Password: "secret",
//	    Root:     "/data/eval",
//	})
//
// With SSH key authentication:
//
//	store, err := sftp.New(sftp.Config{
//	    Host:    "archive.example.com",
//	    User:    "eval",
//	    KeyFile: "/home/eval/.ssh/id_ed25519",
//	})
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/evalkit/evaldb"
)

func init() {
	evaldb.Register("sftp", NewFromConfig)
}

// Store implements evaldb.Store over a remote SFTP file tree.
type Store struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	config     Config
	closed     bool
	mu         sync.RWMutex
}

// New creates an SFTP store with the given configuration, connecting
// immediately.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30
	}

	var authMethods []ssh.AuthMethod
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}
	if cfg.KeyFile != "" {
		keyAuth, err := keyFileAuth(cfg.KeyFile, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading key file: %w", err)
		}
		authMethods = append(authMethods, keyAuth)
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("sftp: no authentication method provided (password or key_file required)")
	}

	// NOTE: Host key verification is disabled. For production use,
	// configure KnownHostsFile in Config once supported.
	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		Timeout:         time.Duration(cfg.Timeout) * time.Second,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106: dev/test convenience; KnownHostsFile support planned
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("sftp: SSH connection failed: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		if closeErr := sshClient.Close(); closeErr != nil {
			return nil, fmt.Errorf("sftp: SFTP session failed: %w (also failed to close SSH: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("sftp: SFTP session failed: %w", err)
	}

	return &Store{
		sshClient:  sshClient,
		sftpClient: sftpClient,
		config:     cfg,
	}, nil
}

// NewFromConfig creates an SFTP store from a config map.
// This is used by the evaldb registry.
func NewFromConfig(configMap map[string]string) (evaldb.Store, error) {
	return New(ConfigFromMap(configMap))
}

// keyFileAuth creates an SSH auth method from a private key file.
func keyFileAuth(keyFile, passphrase string) (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

// NewWriter creates a writer for the given key, creating parent
// directories as needed.
func (s *Store) NewWriter(ctx context.Context, key string) (io.WriteCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := s.fullPath(key)
	if err := s.sftpClient.MkdirAll(path.Dir(fullPath)); err != nil {
		return nil, fmt.Errorf("sftp: creating directory: %w", err)
	}
	f, err := s.sftpClient.Create(fullPath)
	if err != nil {
		return nil, s.translateError(err, key)
	}
	return f, nil
}

// NewReader creates a reader for the given key.
func (s *Store) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.sftpClient.Open(s.fullPath(key))
	if err != nil {
		return nil, s.translateError(err, key)
	}
	return f, nil
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkClosed(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.sftpClient.Stat(s.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, s.translateError(err, key)
	}
	return true, nil
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.sftpClient.Remove(s.fullPath(key)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return s.translateError(err, key)
	}
	return nil
}

// List lists keys with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPrefix := s.fullPath(prefix)
	dir := fullPrefix
	namePrefix := ""

	// A prefix that isn't a directory narrows the listing by file name
	// within its parent.
	info, err := s.sftpClient.Stat(fullPrefix)
	if err != nil || !info.IsDir() {
		dir = path.Dir(fullPrefix)
		namePrefix = path.Base(fullPrefix)
	}

	var keys []string
	if err := s.walkDir(ctx, dir, namePrefix, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) walkDir(ctx context.Context, dir, namePrefix string, keys *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := s.sftpClient.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sftp: listing directory: %w", err)
	}

	for _, entry := range entries {
		if namePrefix != "" && !strings.HasPrefix(entry.Name(), namePrefix) {
			continue
		}
		entryPath := path.Join(dir, entry.Name())
		rel := strings.TrimPrefix(entryPath, s.config.Root)
		rel = strings.TrimPrefix(rel, "/")

		if entry.IsDir() {
			if err := s.walkDir(ctx, entryPath, "", keys); err != nil {
				return err
			}
		} else {
			*keys = append(*keys, rel)
		}
	}
	return nil
}

// Close tears down the SFTP session and SSH connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.sftpClient != nil {
		if err := s.sftpClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.sshClient != nil {
		if err := s.sshClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sftp: close errors: %v", errs)
	}
	return nil
}

// Stat returns metadata about the object at key.
func (s *Store) Stat(ctx context.Context, key string) (evaldb.ObjectInfo, error) {
	if err := s.checkClosed(); err != nil {
		return evaldb.ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return evaldb.ObjectInfo{}, err
	}

	info, err := s.sftpClient.Stat(s.fullPath(key))
	if err != nil {
		return evaldb.ObjectInfo{}, s.translateError(err, key)
	}
	return evaldb.ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// FilePath is not supported; the tree is remote.
func (s *Store) FilePath(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("%w: SFTP objects have no local file path", evaldb.ErrUnsupportedAccess)
}

// Features returns the capabilities of the SFTP store.
func (s *Store) Features() evaldb.Features {
	return evaldb.Features{
		FilePath: false,
		Stat:     true,
	}
}

// fullPath returns the remote path for a key.
func (s *Store) fullPath(key string) string {
	if s.config.Root == "" {
		return key
	}
	return path.Join(s.config.Root, key)
}

func (s *Store) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return evaldb.ErrBackendClosed
	}
	return nil
}

// translateError converts SFTP errors to evaldb errors.
func (s *Store) translateError(err error, key string) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", evaldb.ErrNotFound, key)
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && os.IsNotExist(pathErr.Err) {
		return fmt.Errorf("%w: %s", evaldb.ErrNotFound, key)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("sftp: network error for %q: %w", key, err)
	}
	return fmt.Errorf("sftp: error for %q: %w", key, err)
}

var _ evaldb.ExtendedStore = (*Store)(nil)
