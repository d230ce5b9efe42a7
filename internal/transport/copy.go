package transport

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
)

// Copy transfers the full working copy to the remote deployment path via
// SFTP. Overwrite semantics: existing remote files are truncated, nothing
// is excluded and nothing is diffed.
func (s *SSH) Copy(ctx context.Context, localDir, remoteDir string) error {
	client, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("opening sftp channel: %w", err)
	}
	defer client.Close()

	if err := client.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("creating remote directory %s: %w", remoteDir, err)
	}

	return filepath.WalkDir(localDir, func(local string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(localDir, local)
		if err != nil {
			return err
		}
		remote := path.Join(remoteDir, filepath.ToSlash(rel))

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if err := client.MkdirAll(remote); err != nil {
				return fmt.Errorf("creating remote directory %s: %w", remote, err)
			}
			return nil
		}

		// Symlinks inside working copies (node_modules and the like)
		// are re-created as links rather than followed.
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(local)
			if err != nil {
				return err
			}
			client.Remove(remote)
			return client.Symlink(target, remote)
		}

		return copyFile(client, local, remote, info.Mode().Perm())
	})
}

// WriteFile writes a single remote file, used for installing generated
// configuration such as the proxy rule.
func (s *SSH) WriteFile(ctx context.Context, remotePath string, data []byte, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("opening sftp channel: %w", err)
	}
	defer client.Close()

	f, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("creating remote file %s: %w", remotePath, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing remote file %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing remote file %s: %w", remotePath, err)
	}

	return client.Chmod(remotePath, perm)
}

func copyFile(client *sftp.Client, local, remote string, perm os.FileMode) error {
	src, err := os.Open(local)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := client.OpenFile(remote, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("creating remote file %s: %w", remote, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copying to %s: %w", remote, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing remote file %s: %w", remote, err)
	}

	return client.Chmod(remote, perm)
}
