package azdo

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// OrgName extracts the organization name from an Azure DevOps org URL.
// Supports https://dev.azure.com/{org} and https://{org}.visualstudio.com.
func OrgName(orgURL string) string {
	if orgURL == "" {
		return ""
	}
	withoutScheme := orgURL
	if idx := strings.Index(withoutScheme, "://"); idx >= 0 {
		withoutScheme = withoutScheme[idx+3:]
	}
	host, path, _ := strings.Cut(withoutScheme, "/")

	if strings.HasSuffix(host, "visualstudio.com") {
		return strings.TrimSuffix(host, ".visualstudio.com")
	}
	parts := splitPath(path)
	if host == "dev.azure.com" {
		if len(parts) > 0 {
			return parts[0]
		}
		return ""
	}
	if len(parts) > 0 {
		return parts[0]
	}
	name, _, _ := strings.Cut(host, ".")
	return name
}

// SSHRemoteURL builds the Azure DevOps SSH remote for a repository:
// git@ssh.dev.azure.com:v3/{org}/{project}/{repo}.
func SSHRemoteURL(orgURL, project, repo string) string {
	return fmt.Sprintf("git@ssh.dev.azure.com:v3/%s/%s/%s", OrgName(orgURL), project, repo)
}

// HTTPSRemoteURL builds the Azure DevOps HTTPS remote for a repository:
// https://dev.azure.com/{org}/{project}/_git/{repo}.
func HTTPSRemoteURL(orgURL, project, repo string) string {
	return fmt.Sprintf("https://dev.azure.com/%s/%s/_git/%s", OrgName(orgURL), project, repo)
}

// BasicAuthHeader returns the Authorization header value for PAT auth, both
// for REST calls and for git's http.extraHeader on the secondary transport.
// The username is left empty (":PAT"), which Azure DevOps accepts.
func BasicAuthHeader(pat string) string {
	token := base64.StdEncoding.EncodeToString([]byte(":" + pat))
	return "Basic " + token
}

func splitPath(path string) []string {
	var out []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
