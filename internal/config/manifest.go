package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rnwood/alm4dataverse/internal/domain"
)

// LoadManifest reads and validates the deployment manifest. The manifest is
// read once per pipeline run; callers treat the result as immutable.
func LoadManifest(path string) (domain.DeploymentManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.DeploymentManifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m domain.DeploymentManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return domain.DeploymentManifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return domain.DeploymentManifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}
