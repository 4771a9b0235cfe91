package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveProfile writes p under profiles.<id> in the config file at configPath,
// replacing an existing entry with the same id. The rest of the file keeps
// its structure and comments. The file is created if it does not exist.
func SaveProfile(configPath string, p Profile) error {
	if p.ID == "" {
		return fmt.Errorf("profile has no id")
	}

	root, err := readDocument(configPath)
	if err != nil {
		return err
	}
	docNode := root.Content[0]

	profilesNode := findMapValue(docNode, "profiles")
	if profilesNode == nil {
		profilesNode = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		docNode.Content = append(docNode.Content, scalarNode("profiles"), profilesNode)
	}

	// The map key is the id; keep it out of the value.
	stored := p
	stored.ID = ""
	var valueNode yaml.Node
	if err := valueNode.Encode(stored); err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	if existing := findMapValue(profilesNode, p.ID); existing != nil {
		*existing = valueNode
	} else {
		profilesNode.Content = append(profilesNode.Content, scalarNode(p.ID), &valueNode)
	}

	return writeDocument(configPath, root)
}

// RemoveProfile deletes profiles.<id> from the config file. Removing an id
// that is not present is not an error.
func RemoveProfile(configPath, id string) error {
	root, err := readDocument(configPath)
	if err != nil {
		return err
	}

	profilesNode := findMapValue(root.Content[0], "profiles")
	if profilesNode == nil {
		return nil
	}
	for i := 0; i < len(profilesNode.Content)-1; i += 2 {
		if profilesNode.Content[i].Value == id {
			profilesNode.Content = append(profilesNode.Content[:i], profilesNode.Content[i+2:]...)
			return writeDocument(configPath, root)
		}
	}
	return nil
}

func readDocument(configPath string) (*yaml.Node, error) {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var root yaml.Node
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if root.Kind == 0 {
		root = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{{
				Kind: yaml.MappingNode,
				Tag:  "!!map",
				Content: []*yaml.Node{
					scalarNode("version"),
					{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(CurrentConfigVersion)},
				},
			}},
		}
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("invalid YAML document structure")
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping at document root")
	}
	return &root, nil
}

func writeDocument(configPath string, root *yaml.Node) error {
	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return valueNode
		}
	}

	return nil
}
