// Package scan runs the per-repository analysis stages: software
// bill-of-materials generation and secret detection. Both stages write one
// artifact per repository under a deterministic name, which doubles as the
// idempotence marker for re-runs.
package scan

import (
	"path/filepath"
	"strings"
)

// Basename derives the artifact file stem for a repository. Path separators
// and spaces collapse to underscores so one flat directory can hold every
// artifact without collisions from nested repository names.
func Basename(project, repo string) string {
	r := strings.NewReplacer("/", "_", " ", "_")
	return r.Replace(project) + "_" + r.Replace(repo)
}

// ArtifactPaths resolves the two artifact locations for a repository.
func ArtifactPaths(sbomDir, secretsDir, project, repo string) (sbomPath, secretsPath string) {
	base := Basename(project, repo)
	return filepath.Join(sbomDir, base+".cdx.json"),
		filepath.Join(secretsDir, base+".trufflehog.jsonl")
}
