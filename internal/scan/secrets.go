package scan

import (
	"context"
	"os"

	"reposweep/internal/execx"
)

// SecretScanner runs trufflehog against a repository checkout and writes its
// JSON-lines findings to an artifact file.
type SecretScanner struct {
	Runner execx.Runner

	// OnlyVerified restricts findings to credentials the scanner could
	// verify against their issuing service.
	OnlyVerified bool
}

// Scan tries up to three invocation shapes in order and keeps the first that
// exits cleanly: the plain git-history scan, the same scan with the updater
// disabled (older releases fail on locked-down hosts when self-updating),
// and finally a filesystem scan of the working tree. Each attempt rewrites
// the artifact from scratch. The returned result is the last attempt's.
func (s *SecretScanner) Scan(ctx context.Context, repoDir, outPath string) execx.Result {
	attempts := [][]string{
		{"trufflehog", "git", ".", "--json"},
		{"trufflehog", "git", ".", "--json", "--no-update"},
		{"trufflehog", "filesystem", ".", "--json"},
	}

	var last execx.Result
	for _, argv := range attempts {
		if s.OnlyVerified {
			argv = append(argv, "--only-verified")
		}
		f, err := os.Create(outPath)
		if err != nil {
			return execx.Result{ExitCode: 1, Tail: err.Error()}
		}
		last = s.Runner.Run(ctx, execx.Spec{
			Argv:   argv,
			Dir:    repoDir,
			Stdout: f,
		})
		f.Close()
		if last.ExitCode == 0 {
			return last
		}
	}
	return last
}
