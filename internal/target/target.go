// Package target models the deployment target and, for serve mode, the
// registry of named deployments loaded from targets.yaml.
package target

// Target identifies the remote host a release is deployed to. Supplied
// once at the start of a run and read-only afterwards.
type Target struct {
	// Host is the public address of the machine.
	Host string

	// User is the SSH user remote commands run as.
	User string

	// KeyPath points at the private key used for authentication.
	KeyPath string

	// Port is the loopback port the container is bound to. The proxy
	// forwards port 80 to it; the port itself is never exposed publicly.
	Port int
}

// Entry is a validated named deployment from targets.yaml.
type Entry struct {
	Name   string
	Repo   string
	Branch string
	Token  string
	Host   string
	User   string
	Key    string
	Port   int
	Secret string
}

// EntryConfig is the YAML shape of one named deployment.
type EntryConfig struct {
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
	Token  string `yaml:"token"`
	Host   string `yaml:"host"`
	User   string `yaml:"user"`
	Key    string `yaml:"key"`
	Port   int    `yaml:"port"`
	Secret string `yaml:"secret"`
}

// Config is the root configuration structure of targets.yaml.
type Config struct {
	Targets map[string]EntryConfig `yaml:"targets"`
}

// Target returns the deployment target described by the entry.
func (e *Entry) Target() Target {
	return Target{Host: e.Host, User: e.User, KeyPath: e.Key, Port: e.Port}
}
