// Package archive reads and writes folder archives: a zip of one JSON
// file per manifest plus a folder_info.json sidecar describing the
// folder. Archives are the interchange format for bulk import and
// export.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/courierdesk/courierdesk/internal/model"
	"github.com/courierdesk/courierdesk/internal/reconcile"
)

// sidecarName identifies the folder metadata entry inside an archive.
const sidecarName = "folder_info.json"

// sidecarVersion is the current archive format version.
const sidecarVersion = "2.0"

// FolderInfo is the sidecar written alongside the manifest entries.
type FolderInfo struct {
	FolderName     string `json:"folderName"`
	CreatedDate    string `json:"createdDate"`
	CreatedTime    string `json:"createdTime"`
	TotalManifests int    `json:"totalManifests"`
	Version        string `json:"version"`
}

// WriteFolder writes a zip archive containing one JSON entry per
// manifest, named after its manifest number, plus the folder sidecar.
func WriteFolder(w io.Writer, folderName string, manifests []model.Manifest) error {
	zw := zip.NewWriter(w)

	now := time.Now()
	info := FolderInfo{
		FolderName:     folderName,
		CreatedDate:    now.Format("01/02/2006"),
		CreatedTime:    now.Format("15:04:05"),
		TotalManifests: len(manifests),
		Version:        sidecarVersion,
	}
	if err := writeEntry(zw, sidecarName, info); err != nil {
		return err
	}

	seen := make(map[string]int)
	for i := range manifests {
		m := &manifests[i]
		name := entryName(m.ManifestNo, i, seen)
		if err := writeEntry(zw, name, m); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, v interface{}) error {
	f, err := zw.Create(name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// entryName produces a filesystem-safe, collision-free entry name from a
// manifest number.
func entryName(manifestNo string, idx int, seen map[string]int) string {
	base := sanitize(manifestNo)
	if base == "" {
		base = fmt.Sprintf("manifest_%d", idx+1)
	}
	seen[base]++
	if n := seen[base]; n > 1 {
		base = fmt.Sprintf("%s_%d", base, n)
	}
	return base + ".json"
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

// Archive is the decoded contents of a folder archive.
type Archive struct {
	// FolderName comes from the sidecar when present, otherwise from
	// the archive filename.
	FolderName string
	Files      []reconcile.FileItem
}

// Read decodes a folder archive. A missing or corrupt sidecar is
// tolerated: the folder name falls back to fallbackName and every JSON
// entry is treated as a manifest candidate. Non-JSON entries and the
// sidecar itself are excluded from Files.
func Read(data []byte, fallbackName string) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	out := &Archive{FolderName: strings.TrimSuffix(path.Base(fallbackName), ".zip")}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := path.Base(zf.Name)
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		content, err := readEntry(zf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", zf.Name, err)
		}

		if name == sidecarName {
			var info FolderInfo
			if err := json.Unmarshal(content, &info); err == nil && info.FolderName != "" {
				out.FolderName = info.FolderName
			}
			continue
		}
		out.Files = append(out.Files, reconcile.FileItem{Name: name, Data: content})
	}
	return out, nil
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
