package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const layerConfigurationsKey = "layer_configurations"

// SaveLayerConfigurations replaces the layer_configurations section of the
// config file, creating the file if needed. Comments and formatting in other
// sections are preserved by editing the yaml.Node tree.
func SaveLayerConfigurations(configPath string, lcs []LayerConfiguration) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	lcNode, err := buildLayerConfigurationsNode(lcs)
	if err != nil {
		return fmt.Errorf("building layer configurations node: %w", err)
	}

	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: layerConfigurationsKey},
						lcNode,
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return fmt.Errorf("parsing config: top level is not a mapping")
		}
		found := false
		for i := 0; i < len(root.Content)-1; i += 2 {
			if root.Content[i].Value == layerConfigurationsKey {
				root.Content[i+1] = lcNode
				found = true
				break
			}
		}
		if !found {
			root.Content = append(root.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: layerConfigurationsKey},
				lcNode,
			)
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// buildLayerConfigurationsNode encodes lcs as a sequence node.
func buildLayerConfigurationsNode(lcs []LayerConfiguration) (*yaml.Node, error) {
	node := &yaml.Node{}
	if err := node.Encode(lcs); err != nil {
		return nil, err
	}
	return node, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".layerforge.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// LayerConfigurationFromDirs returns a configuration using every directory
// name as a layer, in the given order.
func LayerConfigurationFromDirs(growTo int, dirs []string) LayerConfiguration {
	entries := make([]LayerEntry, len(dirs))
	for i, d := range dirs {
		entries[i] = LayerEntry{Name: d}
	}
	return LayerConfiguration{GrowEditionSizeTo: growTo, LayersOrder: entries}
}
