package gitsync

// DefaultSSHOpts hardens the SSH transport against flaky networks: bounded
// connect time, keepalives, key auth only, throughput QoS.
const DefaultSSHOpts = "-o ConnectTimeout=20 -o ServerAliveInterval=30 -o ServerAliveCountMax=6 -o PreferredAuthentications=publickey -o IPQoS=throughput"

// SSHEnv builds the environment entries that configure git's SSH transport
// for every invocation. A non-empty identityFile pins that key and stops
// the agent from offering others.
func SSHEnv(opts, identityFile string) []string {
	if opts == "" {
		opts = DefaultSSHOpts
	}
	cmd := "ssh " + opts
	if identityFile != "" {
		cmd += " -i " + identityFile + " -o IdentitiesOnly=yes"
	}
	return []string{
		"GIT_SSH_COMMAND=" + cmd,
		"GIT_SSH_VARIANT=ssh",
	}
}
