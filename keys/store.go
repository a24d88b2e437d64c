package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps board seeds under Directory:
//
//	<board>/root.key
//	<board>/roles/<role>.key
//
// Each file holds one hex-encoded seed.
type KeyStore struct {
	Directory string
}

// KeyEntry lists a board and the roles derived for it.
type KeyEntry struct {
	Board string
	Roles []string
}

func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".resultledger", "keys"), nil
}

// Open returns a key store rooted at directory, or at DefaultDirectory when
// directory is empty.
func Open(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootPath(board string) string {
	return filepath.Join(ks.Directory, board, "root.key")
}

func (ks *KeyStore) rolePath(board, role string) string {
	return filepath.Join(ks.Directory, board, "roles", role+".key")
}

func checkName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", c, kind)
	}
	return nil
}

func CheckBoard(board string) error { return checkName("board", board) }
func CheckRole(role string) error   { return checkName("role", role) }

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimPrefix(strings.TrimSpace(seedHex), "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func writeSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return f.Close()
}

func readSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitBoard writes the root seed for board and returns its Ed25519 public key.
func (ks *KeyStore) InitBoard(board string, seed []byte, overwrite bool) (publicKey, path string, err error) {
	if err := CheckBoard(board); err != nil {
		return "", "", err
	}
	path = ks.rootPath(board)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	publicKey, err = Ed25519PublicKeyString(ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
	return publicKey, path, err
}

// DeriveRole derives and stores the role seed for board.
func (ks *KeyStore) DeriveRole(board, role string, overwrite bool) (path string, err error) {
	if err := CheckBoard(board); err != nil {
		return "", err
	}
	if err := CheckRole(role); err != nil {
		return "", err
	}
	root, err := readSeed(ks.rootPath(board))
	if err != nil {
		return "", err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return "", err
	}
	path = ks.rolePath(board, role)
	if err := writeSeed(path, seed, overwrite); err != nil {
		return "", err
	}
	return path, nil
}

// Seed loads the root seed of board, or a role seed when role is set.
func (ks *KeyStore) Seed(board, role string) ([]byte, error) {
	if err := CheckBoard(board); err != nil {
		return nil, err
	}
	if role == "" {
		return readSeed(ks.rootPath(board))
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	return readSeed(ks.rolePath(board, role))
}

// Signer loads a seed and wraps it as a signer of alg.
func (ks *KeyStore) Signer(alg, board, role string) (Signer, error) {
	seed, err := ks.Seed(board, role)
	if err != nil {
		return nil, err
	}
	return NewSigner(alg, seed)
}

// LoadSeed resolves a seed from, in order, a hex literal, a key file, or a
// board/role pair in the store.
func (ks *KeyStore) LoadSeed(seedHex, keyFile, board, role string) ([]byte, error) {
	switch {
	case seedHex != "":
		return ParseSeedHex(seedHex)
	case keyFile != "":
		return readSeed(keyFile)
	case board != "":
		return ks.Seed(board, role)
	}
	return nil, errors.New("no signing key provided")
}

func (ks *KeyStore) List() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var boards []string
	for _, e := range entries {
		if e.IsDir() {
			boards = append(boards, e.Name())
		}
	}
	sort.Strings(boards)

	out := make([]KeyEntry, 0, len(boards))
	for _, board := range boards {
		var roles []string
		if roleEntries, err := os.ReadDir(filepath.Join(ks.Directory, board, "roles")); err == nil {
			for _, e := range roleEntries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".key") {
					roles = append(roles, strings.TrimSuffix(e.Name(), ".key"))
				}
			}
			sort.Strings(roles)
		}
		out = append(out, KeyEntry{Board: board, Roles: roles})
	}
	return out, nil
}
