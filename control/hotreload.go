// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Re-reads a TOML file and pushes its values through a ConfigStore so
// registered reload listeners observe the change.

package control

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ReloadFile decodes path and applies every key it defines to store. Keys
// absent from the file keep their current values.
func ReloadFile(store *ConfigStore, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("control: reload: %w", err)
	}
	var values map[string]any
	if _, err := toml.Decode(string(raw), &values); err != nil {
		return fmt.Errorf("control: reload: %w", err)
	}
	if len(values) == 0 {
		return nil
	}
	return store.SetConfig(values)
}
