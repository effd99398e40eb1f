package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a problem with one host's inventory entry.
type ValidationError struct {
	Host    string
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: host %s: %s=%q: %s", e.Host, e.Field, e.Value, e.Message)
}

// Validate checks every host and returns all problems joined together.
// dev_hostname values become file names, so they must be unique and free of path separators.
func (inv *Inventory) Validate() error {
	var errs []error
	owners := map[string]string{}
	for _, h := range inv.Hosts {
		if h.Platform == "" {
			errs = append(errs, ValidationError{Host: h.Name, Field: "platform", Message: "platform is required"})
		}
		name := h.DevHostname
		switch {
		case name == "", name == ".", name == "..":
			errs = append(errs, ValidationError{Host: h.Name, Field: KeyDevHostname, Value: name, Message: "not a usable file name"})
		case strings.ContainsAny(name, `/\`):
			errs = append(errs, ValidationError{Host: h.Name, Field: KeyDevHostname, Value: name, Message: "must not contain path separators"})
		}
		if prev, ok := owners[name]; ok {
			errs = append(errs, ValidationError{Host: h.Name, Field: KeyDevHostname, Value: name, Message: "already used by host " + prev})
		} else {
			owners[name] = h.Name
		}
	}
	return errors.Join(errs...)
}
