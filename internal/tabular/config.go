package tabular

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed columns.yaml
var columnsYAML []byte

type ColumnConfig struct {
	ForcedTypes map[string]string `yaml:"forced_types"`
	Analytical  struct {
		DateColumn     string `yaml:"date_column"`
		QuantityColumn string `yaml:"quantity_column"`
	} `yaml:"analytical"`
	CanonicalFields map[string]string `yaml:"canonical_fields"`
	Consumption     struct {
		KeyColumn     string `yaml:"key_column"`
		MeasureColumn string `yaml:"measure_column"`
	} `yaml:"consumption"`
}

var (
	configOnce sync.Once
	config     ColumnConfig
	configErr  error
)

// Config returns the embedded column configuration. The embed is part of the
// binary, so a decode failure is a programming error and panics at first use.
func Config() ColumnConfig {
	configOnce.Do(func() {
		configErr = yaml.Unmarshal(columnsYAML, &config)
	})
	if configErr != nil {
		panic(fmt.Sprintf("tabular: bad embedded columns.yaml: %v", configErr))
	}
	return config
}
