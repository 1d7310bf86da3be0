package paccli

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// solutionManifestPath is where the unpack layout keeps the manifest.
const solutionManifestPath = "Other/Solution.xml"

type solutionManifestDoc struct {
	SolutionManifest struct {
		Version string `xml:"Version"`
	} `xml:"SolutionManifest"`
}

// ReadVersion parses the version out of an unpacked snapshot folder. pac
// has no verb for this, so the manifest XML is read directly.
func (c *CLI) ReadVersion(_ context.Context, dir string) (domain.SolutionVersion, error) {
	path := filepath.Join(dir, filepath.FromSlash(solutionManifestPath))
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SolutionVersion{}, fmt.Errorf("read solution manifest: %w", err)
	}
	var doc solutionManifestDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return domain.SolutionVersion{}, fmt.Errorf("parse %s: %w", path, err)
	}
	v, err := domain.ParseVersion(doc.SolutionManifest.Version)
	if err != nil {
		return domain.SolutionVersion{}, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
