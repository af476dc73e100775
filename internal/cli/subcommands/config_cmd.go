package subcommands

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"fireside/internal/config"
)

// RunConfig displays the resolved configuration.
func RunConfig(cfg config.Config) int {
	fmt.Println("=== fireside Configuration ===")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Printf("Error marshaling config: %v\n", err)
		return 1
	}

	fmt.Println(string(data))
	return 0
}
