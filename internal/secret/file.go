package secret

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fernet/fernet-go"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"gopkg.in/yaml.v3"
)

// FileStore keeps fernet-encrypted secrets in a YAML file. The fernet key
// lives in a separate file and is generated on first use. Both files are
// written with 0600 permissions. Concurrent writers in the same process are
// serialized; across processes the last write wins.
type FileStore struct {
	path    string
	keyPath string

	mu  sync.Mutex
	key *fernet.Key
}

// secretFile is the on-disk layout.
type secretFile struct {
	Version int               `yaml:"version"`
	Secrets map[string]string `yaml:"secrets"`
}

// NewFileStore returns a store backed by path, encrypted with the key at keyPath.
func NewFileStore(path, keyPath string) *FileStore {
	return &FileStore{path: path, keyPath: keyPath}
}

func (f *FileStore) Store(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	k, err := f.loadKey(true)
	if err != nil {
		return err
	}
	data, err := f.read()
	if err != nil {
		return err
	}

	tok, err := fernet.EncryptAndSign([]byte(value), k)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSecret, "Failed to encrypt secret", "")
	}
	data.Secrets[key] = string(tok)
	return f.write(data)
}

func (f *FileStore) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return "", false, err
	}
	tok, ok := data.Secrets[key]
	if !ok {
		return "", false, nil
	}

	k, err := f.loadKey(false)
	if err != nil {
		return "", false, err
	}
	msg := fernet.VerifyAndDecrypt([]byte(tok), 0, []*fernet.Key{k})
	if msg == nil {
		return "", false, errors.New(errors.ErrSecret,
			fmt.Sprintf("Secret '%s' can't be decrypted", key),
			"The key file may have changed. Delete the secret and store it again.")
	}
	return string(msg), true, nil
}

func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := data.Secrets[key]; !ok {
		return nil
	}
	delete(data.Secrets, key)
	return f.write(data)
}

// Keys lists the stored keys in sorted order. Values are not decrypted.
func (f *FileStore) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(data.Secrets))
	for k := range data.Secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// loadKey reads the fernet key, generating and saving one when create is set
// and no key file exists yet.
func (f *FileStore) loadKey(create bool) (*fernet.Key, error) {
	if f.key != nil {
		return f.key, nil
	}

	raw, err := os.ReadFile(f.keyPath)
	if err == nil {
		k, err := fernet.DecodeKey(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSecret,
				"Secret key file is corrupt: "+f.keyPath,
				"Remove it and re-enter your passwords.")
		}
		f.key = k
		return k, nil
	}
	if !os.IsNotExist(err) || !create {
		return nil, errors.WrapWithCode(err, errors.ErrSecret,
			"Can't read secret key file: "+f.keyPath,
			"Check the file permissions")
	}

	var k fernet.Key
	if err := k.Generate(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSecret, "Failed to generate secret key", "")
	}
	if err := writeFile0600(f.keyPath, []byte(k.Encode()+"\n")); err != nil {
		return nil, err
	}
	f.key = &k
	return f.key, nil
}

func (f *FileStore) read() (*secretFile, error) {
	data := &secretFile{Version: 1, Secrets: make(map[string]string)}

	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSecret,
			"Can't read secrets file: "+f.path,
			"Check the file permissions")
	}
	if err := yaml.Unmarshal(raw, data); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSecret,
			"Secrets file is not valid YAML: "+f.path, "")
	}
	if data.Secrets == nil {
		data.Secrets = make(map[string]string)
	}
	return data, nil
}

func (f *FileStore) write(data *secretFile) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSecret, "Failed to encode secrets", "")
	}
	return writeFile0600(f.path, raw)
}

// writeFile0600 replaces path atomically through a temp file in the same directory.
func writeFile0600(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.WrapWithCode(err, errors.ErrSecret, "Can't create "+dir, "")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSecret, "Can't write "+path, "")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.WrapWithCode(err, errors.ErrSecret, "Can't write "+path, "")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapWithCode(err, errors.ErrSecret, "Can't write "+path, "")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapWithCode(err, errors.ErrSecret, "Can't write "+path, "")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.WrapWithCode(err, errors.ErrSecret, "Can't write "+path, "")
	}
	return nil
}
