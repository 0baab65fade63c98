// Package config loads a validator node's YAML configuration file into
// consensus.Config plus the storage/network settings that sit around it
// (spec.md §6). Grounded on the teacher's cmd/warren/apply.go, which
// unmarshals a YAML manifest with gopkg.in/yaml.v3 before handing it to
// the rest of the program.
package config
