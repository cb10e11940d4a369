package builder

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/buildspec"
)

// buildContext assembles the tar stream the daemon builds from: the rendered
// Dockerfile and aux files first, then the application source tree. Rendered
// files shadow any source file of the same name.
func buildContext(source fs.FS, def *buildspec.ContainerDefinition) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now().UTC()

	rendered := map[string]bool{"Dockerfile": true}
	if err := writeTarFile(tw, "Dockerfile", []byte(def.Dockerfile), now); err != nil {
		return nil, err
	}
	for name, content := range def.Files {
		rendered[name] = true
		if err := writeTarFile(tw, name, []byte(content), now); err != nil {
			return nil, err
		}
	}

	err := fs.WalkDir(source, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			hdr := &tar.Header{
				Name:     path + "/",
				Typeflag: tar.TypeDir,
				Mode:     0o755,
				ModTime:  now,
			}
			return tw.WriteHeader(hdr)
		}
		if rendered[path] {
			return nil
		}

		data, err := fs.ReadFile(source, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		return writeTarFile(tw, path, data, now)
	})
	if err != nil {
		return nil, fmt.Errorf("walk source tree: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalize build context: %w", err)
	}
	return &buf, nil
}

func writeTarFile(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar entry %s: %w", name, err)
	}
	return nil
}
