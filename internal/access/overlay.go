package access

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlayFile is the optional on-disk policy overlay. It can only widen the
// compiled-in defaults, never revoke them.
//
//	grants:
//	  RELEASE_MANAGER:
//	    - requirement.edit
type overlayFile struct {
	Grants map[string][]string `yaml:"grants"`
}

// LoadOverlay merges extra grants from a yaml file into the policy. A missing
// path is not an error; a malformed file is.
func (p *Policy) LoadOverlay(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read policy overlay: %w", err)
	}
	var overlay overlayFile
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse policy overlay: %w", err)
	}
	for role, ops := range overlay.Grants {
		for _, op := range ops {
			p.grant(Role(role), Operation(op))
		}
	}
	return nil
}
