package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/config"
)

// FTPStore archives objects on an FTP server. Each call opens its own
// control connection.
type FTPStore struct {
	addr     string
	user     string
	password string
	root     string
	timeout  time.Duration
}

// NewFTP creates an FTPStore from config.
func NewFTP(cfg config.FTPConfig) (*FTPStore, error) {
	if cfg.Addr == "" {
		return nil, eris.New("blob: ftp addr is required")
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	user, password := cfg.User, cfg.Password
	if user == "" {
		user, password = "anonymous", "anonymous@"
	}
	root := "/" + strings.Trim(cfg.Root, "/")
	return &FTPStore{addr: cfg.Addr, user: user, password: password, root: root, timeout: timeout}, nil
}

func (s *FTPStore) dial(ctx context.Context) (*ftp.ServerConn, error) {
	zap.L().Debug("ftp: connecting", zap.String("addr", s.addr))

	conn, err := ftp.Dial(s.addr, ftp.DialWithTimeout(s.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}
	if err := conn.Login(s.user, s.password); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "ftp login")
	}
	return conn, nil
}

func (s *FTPStore) remote(key string) (string, string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, path.Join(s.root, k), nil
}

func (s *FTPStore) PutObject(ctx context.Context, data []byte, key string) (string, error) {
	k, remote, err := s.remote(key)
	if err != nil {
		return "", err
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Quit() //nolint:errcheck

	// Create each parent directory; existing ones return an error we ignore.
	dir := path.Dir(remote)
	var built string
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		built += "/" + part
		_ = conn.MakeDir(built)
	}

	if err := conn.Stor(remote, bytes.NewReader(data)); err != nil {
		return "", eris.Wrapf(err, "ftp store %s", remote)
	}
	return k, nil
}

func (s *FTPStore) GetObject(ctx context.Context, p string) ([]byte, error) {
	_, remote, err := s.remote(p)
	if err != nil {
		return nil, err
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit() //nolint:errcheck

	resp, err := conn.Retr(remote)
	if err != nil {
		if isFTPNotFound(err) {
			return nil, eris.Wrapf(ErrNotFound, "blob: %s", p)
		}
		return nil, eris.Wrapf(err, "ftp retrieve %s", remote)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp read %s", remote)
	}
	return data, nil
}

func (s *FTPStore) DeleteObject(ctx context.Context, p string) error {
	_, remote, err := s.remote(p)
	if err != nil {
		return err
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Delete(remote); err != nil {
		if isFTPNotFound(err) {
			return eris.Wrapf(ErrNotFound, "blob: %s", p)
		}
		return eris.Wrapf(err, "ftp delete %s", remote)
	}
	return nil
}

// GetSignedURL returns a plain ftp:// URL. FTP has no signed access, so ttl
// is ignored and credentials are never embedded.
func (s *FTPStore) GetSignedURL(_ context.Context, p string, _ time.Duration) (string, error) {
	_, remote, err := s.remote(p)
	if err != nil {
		return "", err
	}
	return "ftp://" + s.addr + remote, nil
}

func isFTPNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}
