// Package cloudconfig resolves OpenStack credentials from clouds.yaml and
// explicitly supplied values, and exports them as OS_* variables.
package cloudconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

var (
	ErrCloudNotFound = errors.New("cloud not found in clouds.yaml")
	ErrMissingAuth   = errors.New("missing required authentication values")
)

// Credentials is the flattened view of one cloud.
type Credentials struct {
	Cloud              string
	AuthURL            string
	Username           string
	Password           string
	ProjectName        string
	ProjectID          string
	UserDomainName     string
	ProjectDomainName  string
	RegionName         string
	Interface          string
	IdentityAPIVersion string
	CACert             string
	Insecure           bool
}

type cloudsFile struct {
	Clouds map[string]cloudEntry `yaml:"clouds"`
}

type cloudEntry struct {
	Auth struct {
		AuthURL           string `yaml:"auth_url"`
		Username          string `yaml:"username"`
		Password          string `yaml:"password"`
		ProjectName       string `yaml:"project_name"`
		ProjectID         string `yaml:"project_id"`
		UserDomainName    string `yaml:"user_domain_name"`
		ProjectDomainName string `yaml:"project_domain_name"`
	} `yaml:"auth"`
	RegionName         string `yaml:"region_name"`
	Interface          string `yaml:"interface"`
	IdentityAPIVersion string `yaml:"identity_api_version"`
	CACert             string `yaml:"cacert"`
	Verify             *bool  `yaml:"verify"`
}

func (e cloudEntry) credentials(name string) Credentials {
	c := Credentials{
		Cloud:              name,
		AuthURL:            e.Auth.AuthURL,
		Username:           e.Auth.Username,
		Password:           e.Auth.Password,
		ProjectName:        e.Auth.ProjectName,
		ProjectID:          e.Auth.ProjectID,
		UserDomainName:     e.Auth.UserDomainName,
		ProjectDomainName:  e.Auth.ProjectDomainName,
		RegionName:         e.RegionName,
		Interface:          e.Interface,
		IdentityAPIVersion: e.IdentityAPIVersion,
		CACert:             e.CACert,
	}
	if e.Verify != nil {
		c.Insecure = !*e.Verify
	}
	return c
}

// DefaultPaths lists the clouds.yaml locations in lookup order.
// OS_CLIENT_CONFIG_FILE, when set, comes first.
func DefaultPaths(getenv func(string) string) []string {
	var paths []string
	if p := getenv("OS_CLIENT_CONFIG_FILE"); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, "clouds.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "openstack", "clouds.yaml"))
	}
	return append(paths, "/etc/openstack/clouds.yaml")
}

// Loader resolves credentials for a run.
type Loader struct {
	log   log.Logger
	paths []string
}

func NewLoader(logger log.Logger, paths []string) *Loader {
	return &Loader{log: logger, paths: paths}
}

// Resolve merges the named cloud from the first clouds.yaml found with the
// explicit values, explicit values taking precedence. A cloud name that
// cannot be found is an error; no cloud name means explicit values only.
func (l *Loader) Resolve(explicit Credentials) (*Credentials, error) {
	var creds Credentials
	if explicit.Cloud != "" {
		entry, path, err := l.lookup(explicit.Cloud)
		if err != nil {
			return nil, err
		}
		l.log.Debug("loaded cloud", "cloud", explicit.Cloud, "path", path)
		creds = entry.credentials(explicit.Cloud)
	}
	creds.merge(explicit)

	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (l *Loader) lookup(name string) (*cloudEntry, string, error) {
	for _, path := range l.paths {
		clouds, err := loadClouds(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		entry, ok := clouds[name]
		if !ok {
			return nil, "", fmt.Errorf("%w: %q in %s", ErrCloudNotFound, name, path)
		}
		return &entry, path, nil
	}
	return nil, "", fmt.Errorf("%w: %q (searched %s)", ErrCloudNotFound, name, strings.Join(l.paths, ", "))
}

func loadClouds(path string) (map[string]cloudEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file cloudsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return file.Clouds, nil
}

func (c *Credentials) merge(o Credentials) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Cloud, o.Cloud)
	set(&c.AuthURL, o.AuthURL)
	set(&c.Username, o.Username)
	set(&c.Password, o.Password)
	set(&c.ProjectName, o.ProjectName)
	set(&c.ProjectID, o.ProjectID)
	set(&c.UserDomainName, o.UserDomainName)
	set(&c.ProjectDomainName, o.ProjectDomainName)
	set(&c.RegionName, o.RegionName)
	set(&c.Interface, o.Interface)
	set(&c.IdentityAPIVersion, o.IdentityAPIVersion)
	set(&c.CACert, o.CACert)
	c.Insecure = c.Insecure || o.Insecure
}

// Validate checks that password authentication can be attempted.
func (c *Credentials) Validate() error {
	var missing []string
	if c.AuthURL == "" {
		missing = append(missing, "auth_url")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if c.ProjectName == "" && c.ProjectID == "" {
		missing = append(missing, "project_name or project_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingAuth, strings.Join(missing, ", "))
	}
	return nil
}

// Env returns the credentials as OS_* assignments. Empty values are omitted.
func (c *Credentials) Env() []string {
	pairs := []struct{ key, value string }{
		{"OS_AUTH_URL", c.AuthURL},
		{"OS_USERNAME", c.Username},
		{"OS_PASSWORD", c.Password},
		{"OS_PROJECT_NAME", c.ProjectName},
		{"OS_PROJECT_ID", c.ProjectID},
		{"OS_USER_DOMAIN_NAME", c.UserDomainName},
		{"OS_PROJECT_DOMAIN_NAME", c.ProjectDomainName},
		{"OS_REGION_NAME", c.RegionName},
		{"OS_INTERFACE", c.Interface},
		{"OS_IDENTITY_API_VERSION", c.IdentityAPIVersion},
		{"OS_CACERT", c.CACert},
	}
	if c.Insecure {
		pairs = append(pairs, struct{ key, value string }{"OS_INSECURE", strconv.FormatBool(true)})
	}

	var env []string
	for _, p := range pairs {
		if p.value != "" {
			env = append(env, p.key+"="+p.value)
		}
	}
	return env
}

// Environ replaces every OS_* entry of base with the resolved credentials.
func (c *Credentials) Environ(base []string) []string {
	env := make([]string, 0, len(base))
	for _, kv := range base {
		if strings.HasPrefix(kv, "OS_") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, c.Env()...)
}

// String omits the password.
func (c *Credentials) String() string {
	project := c.ProjectName
	if project == "" {
		project = c.ProjectID
	}
	return fmt.Sprintf("%s@%s (project=%s region=%s)", c.Username, c.AuthURL, project, c.RegionName)
}
