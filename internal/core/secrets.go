package core

import (
	"bufio"
	"os"
	"strings"
)

// Environment keys holding fallback device credentials.
const (
	EnvUsername = "NETCFG_USERNAME"
	EnvPassword = "NETCFG_PASSWORD"
)

// LoadSecretsEnv reads KEY=VALUE pairs from path. Lines starting with # are ignored
// and a missing file yields an empty map.
func LoadSecretsEnv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return map[string]string{}, nil // not fatal if missing
	}
	defer f.Close()
	out := map[string]string{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
			out[k] = v
		}
	}
	return out, s.Err()
}
