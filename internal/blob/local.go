package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrBadSignature is returned for expired or tampered signed URLs.
var ErrBadSignature = errors.New("blob: invalid or expired signature")

// LocalStore keeps objects on the local filesystem and signs read URLs with
// HMAC-SHA256.
type LocalStore struct {
	dir        string
	baseURL    string
	signingKey []byte
	now        func() time.Time
}

// NewLocal creates a LocalStore rooted at dir. Signed URLs are built on
// baseURL, which the serve command mounts at /blobs.
func NewLocal(dir, baseURL, signingKey string) (*LocalStore, error) {
	if dir == "" {
		return nil, eris.New("blob: local dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "blob: create dir %s", dir)
	}
	return &LocalStore{
		dir:        dir,
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: []byte(signingKey),
		now:        time.Now,
	}, nil
}

func (s *LocalStore) PutObject(ctx context.Context, data []byte, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "blob: put")
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.dir, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", eris.Wrapf(err, "blob: mkdir for %s", k)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", eris.Wrapf(err, "blob: create temp for %s", k)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrapf(err, "blob: write %s", k)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrapf(err, "blob: close %s", k)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrapf(err, "blob: commit %s", k)
	}
	return k, nil
}

func (s *LocalStore) GetObject(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "blob: get")
	}
	k, err := cleanKey(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(k)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "blob: %s", k)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read %s", k)
	}
	return data, nil
}

func (s *LocalStore) DeleteObject(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "blob: delete")
	}
	k, err := cleanKey(p)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.dir, filepath.FromSlash(k)))
	if errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(ErrNotFound, "blob: %s", k)
	}
	return eris.Wrapf(err, "blob: delete %s", k)
}

// GetSignedURL returns <baseURL>/<path>?expires=<unix>&sig=<hex>.
func (s *LocalStore) GetSignedURL(_ context.Context, p string, ttl time.Duration) (string, error) {
	if len(s.signingKey) == 0 {
		return "", eris.New("blob: signing key is not configured")
	}
	k, err := cleanKey(p)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(k, expires))
	return s.baseURL + "/" + k + "?" + q.Encode(), nil
}

// Verify checks a signature produced by GetSignedURL.
func (s *LocalStore) Verify(p, expires, sig string) error {
	if len(s.signingKey) == 0 {
		return ErrBadSignature
	}
	k, err := cleanKey(p)
	if err != nil {
		return ErrBadSignature
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return ErrBadSignature
	}
	want, err := hex.DecodeString(s.sign(k, exp))
	if err != nil {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(want, got) {
		return ErrBadSignature
	}
	return nil
}

func (s *LocalStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
