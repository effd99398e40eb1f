package inventory

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/imdario/mergo"
	"github.com/mitchellh/copystructure"
	"gopkg.in/yaml.v3"
)

const (
	// KeyDevHostname names the data key holding the artifact file name of a host.
	KeyDevHostname = "dev_hostname"
	// KeyTemplateFile names the data key selecting the host's template.
	KeyTemplateFile = "j2_template_file"

	defaultSSHPort = 22
)

// element is the on-disk shape shared by hosts, groups and defaults.
type element struct {
	Hostname          string                 `yaml:"hostname"`
	Platform          string                 `yaml:"platform"`
	Username          string                 `yaml:"username"`
	Password          string                 `yaml:"password"`
	Port              int                    `yaml:"port"`
	Groups            []string               `yaml:"groups"`
	ConnectionOptions map[string]string      `yaml:"connection_options"`
	Data              map[string]interface{} `yaml:"data"`
}

// Host is one device of the fleet. Inventory fields are set at load time; the
// lifecycle fields below them are filled in by the stages of a run.
type Host struct {
	Name              string
	Hostname          string
	Platform          string
	Username          string
	Password          string
	Port              int
	Groups            []string
	ConnectionOptions map[string]string
	Data              map[string]interface{}

	DevHostname    string
	TemplateFile   string
	RenderedConfig string
	BackupConfig   string
	DiffText       string
}

// Address returns host:port suitable for dialing.
func (h *Host) Address() string {
	addr := h.Hostname
	if addr == "" {
		addr = h.Name
	}
	port := h.Port
	if port == 0 {
		port = defaultSSHPort
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// Option returns a connection option, or def when unset.
func (h *Host) Option(key, def string) string {
	if v, ok := h.ConnectionOptions[key]; ok && v != "" {
		return v
	}
	return def
}

// Attributes returns the full attribute set of the host, used as template context.
// Inventory data wins over the built-in keys.
func (h *Host) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		"name":          h.Name,
		"hostname":      h.Hostname,
		"platform":      h.Platform,
		"groups":        h.Groups,
		KeyDevHostname:  h.DevHostname,
		KeyTemplateFile: h.TemplateFile,
	}
	for k, v := range h.Data {
		attrs[k] = v
	}
	return attrs
}

// Inventory is the ordered set of hosts targeted by a run.
type Inventory struct {
	Hosts []*Host
}

// Len reports the number of hosts.
func (inv *Inventory) Len() int { return len(inv.Hosts) }

// Load reads the hosts, groups and defaults files. Empty groups or defaults paths are skipped.
func Load(hostsFile, groupsFile, defaultsFile string) (*Inventory, error) {
	hosts, err := os.ReadFile(hostsFile)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}
	var groups, defaults []byte
	if groupsFile != "" {
		if groups, err = os.ReadFile(groupsFile); err != nil {
			return nil, fmt.Errorf("read groups file: %w", err)
		}
	}
	if defaultsFile != "" {
		if defaults, err = os.ReadFile(defaultsFile); err != nil {
			return nil, fmt.Errorf("read defaults file: %w", err)
		}
	}
	return Parse(hosts, groups, defaults)
}

// Parse builds an inventory from raw YAML documents. Host attributes are resolved
// host first, then each group in declaration order, then defaults.
func Parse(hostsData, groupsData, defaultsData []byte) (*Inventory, error) {
	hosts := map[string]element{}
	if err := yaml.Unmarshal(hostsData, &hosts); err != nil {
		return nil, fmt.Errorf("parse hosts: %w", err)
	}
	groups := map[string]element{}
	if len(groupsData) > 0 {
		if err := yaml.Unmarshal(groupsData, &groups); err != nil {
			return nil, fmt.Errorf("parse groups: %w", err)
		}
	}
	var defaults element
	if len(defaultsData) > 0 {
		if err := yaml.Unmarshal(defaultsData, &defaults); err != nil {
			return nil, fmt.Errorf("parse defaults: %w", err)
		}
	}

	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	inv := &Inventory{}
	for _, name := range names {
		resolved, err := resolve(hosts[name], groups, defaults)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", name, err)
		}
		inv.Hosts = append(inv.Hosts, newHost(name, resolved))
	}
	return inv, nil
}

func resolve(e element, groups map[string]element, defaults element) (element, error) {
	out, err := clone(e)
	if err != nil {
		return out, err
	}
	if out.Data == nil {
		out.Data = map[string]interface{}{}
	}
	if out.ConnectionOptions == nil {
		out.ConnectionOptions = map[string]string{}
	}

	seen := map[string]bool{}
	var walk func(names []string) error
	walk = func(names []string) error {
		for _, g := range names {
			if seen[g] {
				continue
			}
			seen[g] = true
			src, ok := groups[g]
			if !ok {
				return fmt.Errorf("undefined group %q", g)
			}
			// mergo descends into nested maps and links src values into out,
			// so every merge works on a private copy of the group.
			ge, err := clone(src)
			if err != nil {
				return fmt.Errorf("copy group %s: %w", g, err)
			}
			parents := ge.Groups
			ge.Groups = nil
			if err := mergo.Merge(&out, ge); err != nil {
				return fmt.Errorf("merge group %s: %w", g, err)
			}
			if err := walk(parents); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(e.Groups); err != nil {
		return out, err
	}
	def, err := clone(defaults)
	if err != nil {
		return out, fmt.Errorf("copy defaults: %w", err)
	}
	def.Groups = nil
	if err := mergo.Merge(&out, def); err != nil {
		return out, fmt.Errorf("merge defaults: %w", err)
	}
	return out, nil
}

// clone returns a deep copy of e, nested data included.
func clone(e element) (element, error) {
	c, err := copystructure.Copy(e)
	if err != nil {
		return element{}, err
	}
	return c.(element), nil
}

func newHost(name string, e element) *Host {
	h := &Host{
		Name:              name,
		Hostname:          e.Hostname,
		Platform:          e.Platform,
		Username:          e.Username,
		Password:          e.Password,
		Port:              e.Port,
		Groups:            e.Groups,
		ConnectionOptions: e.ConnectionOptions,
		Data:              e.Data,
	}
	h.DevHostname = stringData(e.Data, KeyDevHostname)
	if h.DevHostname == "" {
		h.DevHostname = name
	}
	h.TemplateFile = stringData(e.Data, KeyTemplateFile)
	return h
}

func stringData(data map[string]interface{}, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// SetDefaultCredentials fills in credentials for hosts that have none after resolution.
func (inv *Inventory) SetDefaultCredentials(username, password string) {
	for _, h := range inv.Hosts {
		if h.Username == "" {
			h.Username = username
		}
		if h.Password == "" {
			h.Password = password
		}
	}
}

// Filter narrows the inventory. Empty criteria match everything; non-empty criteria
// of different kinds must all match.
type Filter struct {
	Names     []string
	Platforms []string
	Groups    []string
}

// Filter returns a new inventory sharing the matching hosts.
func (inv *Inventory) Filter(f Filter) *Inventory {
	out := &Inventory{}
	for _, h := range inv.Hosts {
		if len(f.Names) > 0 && !contains(f.Names, h.Name) {
			continue
		}
		if len(f.Platforms) > 0 && !contains(f.Platforms, h.Platform) {
			continue
		}
		if len(f.Groups) > 0 && !intersects(f.Groups, h.Groups) {
			continue
		}
		out.Hosts = append(out.Hosts, h)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if contains(b, v) {
			return true
		}
	}
	return false
}
