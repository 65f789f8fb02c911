package dtrack

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PackageEntry is one blocklist entry resolved to a package URL pattern.
type PackageEntry struct {
	Name    string
	Version string
	PURL    string
}

// Ranged reports whether the entry came from a ".x" version range. Range
// entries carry a regex PURL and must use a MATCHES condition.
func (p PackageEntry) Ranged() bool {
	return strings.HasSuffix(p.Version, ".x")
}

// Condition converts the entry to a policy condition.
func (p PackageEntry) Condition() PolicyCondition {
	return PolicyCondition{
		Subject:  SubjectPackageURL,
		Operator: OperatorMatches,
		Value:    p.PURL,
	}
}

// ParsePackageLine parses one "name@version" blocklist line. Blank lines and
// comments yield nil. A ".x" version suffix becomes a regex matching any
// patch level; exact versions get their dots escaped so the value is safe as
// a MATCHES pattern either way. Scoped npm names keep their npm ecosystem;
// other names with a slash are treated as GitHub-hosted packages.
func ParsePackageLine(line string) *PackageEntry {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	line = strings.Trim(line, `"`)

	at := strings.LastIndex(line, "@")
	if at <= 0 {
		// No version separator, or a bare scope like "@babel".
		return nil
	}
	name, version := line[:at], line[at+1:]
	if name == "" || version == "" {
		return nil
	}

	var pattern string
	if strings.HasSuffix(version, ".x") {
		pattern = strings.ReplaceAll(version, ".x", `\..*`)
	} else {
		pattern = strings.ReplaceAll(version, ".", `\.`)
	}

	ecosystem := "npm"
	if strings.Contains(name, "/") && !strings.HasPrefix(name, "@") {
		ecosystem = "github"
	}
	return &PackageEntry{
		Name:    name,
		Version: version,
		PURL:    fmt.Sprintf("pkg:%s/%s@%s", ecosystem, name, pattern),
	}
}

type yamlPackageList struct {
	Packages []string `yaml:"packages"`
}

// LoadPackageList reads a blocklist file. A .yaml/.yml extension selects a
// document with a top-level "packages" string list; anything else is parsed
// line by line. Returns the entries plus how many non-empty lines were
// skipped as unparseable.
func LoadPackageList(path string) ([]PackageEntry, int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return loadYAMLPackageList(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var entries []PackageEntry
	skipped := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		entry := ParsePackageLine(line)
		if entry != nil {
			entries = append(entries, *entry)
			continue
		}
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "#") {
			skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	return entries, skipped, nil
}

func loadYAMLPackageList(path string) ([]PackageEntry, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	var doc yamlPackageList
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, 0, fmt.Errorf("parse %s: %w", path, err)
	}
	var entries []PackageEntry
	skipped := 0
	for _, line := range doc.Packages {
		if entry := ParsePackageLine(line); entry != nil {
			entries = append(entries, *entry)
		} else if strings.TrimSpace(line) != "" {
			skipped++
		}
	}
	return entries, skipped, nil
}
