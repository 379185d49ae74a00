// Package config loads the edge host's startup configuration (listen
// addresses, region, port pool, registry seed) from a YAML file, matching
// the teacher's use of gopkg.in/yaml.v3 for its own CLI manifests.
package config
