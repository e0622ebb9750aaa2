package feedtest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"github.com/matzehuels/psresget/pkg/feed"
)

const contentTypes = `<?xml version="1.0" encoding="utf-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="nuspec" ContentType="application/octet" />
  <Default Extension="psd1" ContentType="application/octet" />
</Types>`

const rels = `<?xml version="1.0" encoding="utf-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships" />`

// BuildNupkg returns a .nupkg archive for c containing files plus the usual
// packaging artifacts. Nil files default to [DefaultFiles].
func BuildNupkg(c feed.Candidate, files map[string]string) ([]byte, error) {
	if files == nil {
		files = DefaultFiles(c)
	}
	spec, err := feed.NewNuspec(c).Marshal()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if err := add(c.ID+".nuspec", spec); err != nil {
		return nil, err
	}
	if err := add("[Content_Types].xml", []byte(contentTypes)); err != nil {
		return nil, err
	}
	if err := add("_rels/.rels", []byte(rels)); err != nil {
		return nil, err
	}
	if err := add("package/services/metadata/core-properties/x.psmdcp", []byte("<coreProperties/>")); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := add(name, []byte(files[name])); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteNupkg writes BuildNupkg's output to dir/<id>.<version>.nupkg and
// returns the path.
func WriteNupkg(dir string, c feed.Candidate, files map[string]string) (string, error) {
	data, err := BuildNupkg(c, files)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, c.ID+"."+c.Version.String()+".nupkg")
	return p, os.WriteFile(p, data, 0o644)
}
