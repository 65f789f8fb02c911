package scan

import (
	"context"
	"errors"
	"os"

	"reposweep/internal/execx"
)

// SBOM tool names, in preference order.
const (
	ToolCdxgen = "cdxgen"
	ToolSyft   = "syft"
)

// DiscoverSBOMTool finds the first available generator on PATH. look is
// exec.LookPath in production. An empty result is a preflight failure: a
// run without a generator would produce no bills of material at all.
func DiscoverSBOMTool(look func(string) (string, error)) (string, error) {
	for _, tool := range []string{ToolCdxgen, ToolSyft} {
		if _, err := look(tool); err == nil {
			return tool, nil
		}
	}
	return "", errors.New("no SBOM generator found on PATH (need cdxgen or syft)")
}

// SBOMGenerator produces one CycloneDX JSON document per repository using
// whichever tool discovery selected.
type SBOMGenerator struct {
	Runner execx.Runner
	Tool   string
}

// Generate writes the repository's bill of materials to outPath. The exit
// code is the tool's own; a non-zero code leaves whatever partial output the
// tool produced in place for inspection.
func (g *SBOMGenerator) Generate(ctx context.Context, repoDir, outPath string) execx.Result {
	switch g.Tool {
	case ToolCdxgen:
		return g.Runner.Run(ctx, execx.Spec{
			Argv: []string{"cdxgen", "-r", "-o", outPath, repoDir},
		})
	case ToolSyft:
		// syft writes to stdout; capture it into the artifact file.
		f, err := os.Create(outPath)
		if err != nil {
			return execx.Result{ExitCode: 1, Tail: err.Error()}
		}
		defer f.Close()
		return g.Runner.Run(ctx, execx.Spec{
			Argv:   []string{"syft", repoDir, "-o", "cyclonedx-json"},
			Stdout: f,
		})
	default:
		return execx.Result{ExitCode: 127, Tail: "unknown SBOM tool: " + g.Tool}
	}
}
