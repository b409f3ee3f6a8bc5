// Package loader reads referral configurations and referral records from
// files.
package loader

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/referral-cli/internal/model"
)

// Format is a file encoding understood by the loader.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat returns the format implied by a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Errorf("loader: unsupported file type %q", filepath.Ext(path))
}

// LoadConfiguration reads a configuration from a YAML or JSON file. The
// result is not validated.
func LoadConfiguration(path string) (*model.ReferralConfiguration, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read configuration %s", path)
	}
	return ParseConfiguration(data, format)
}

// ParseConfiguration decodes a configuration document.
func ParseConfiguration(data []byte, format Format) (*model.ReferralConfiguration, error) {
	var cfg model.ReferralConfiguration
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, eris.Wrap(err, "loader: parse configuration json")
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, eris.Wrap(err, "loader: parse configuration yaml")
		}
	default:
		return nil, eris.Errorf("loader: configurations cannot be read from %s", format)
	}
	return &cfg, nil
}

// LoadReferrals reads referral records from a JSON, YAML, CSV or XLSX file.
// JSON and YAML files may hold one record or a list.
func LoadReferrals(path string) ([]model.ReferralRecord, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return readCSV(path)
	case FormatXLSX:
		return readXLSX(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read referrals %s", path)
	}
	return ParseReferrals(data, format)
}

// ParseReferrals decodes one referral or a list of referrals.
func ParseReferrals(data []byte, format Format) ([]model.ReferralRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch format {
	case FormatJSON:
		if trimmed[0] == '[' {
			var out []model.ReferralRecord
			if err := json.Unmarshal(trimmed, &out); err != nil {
				return nil, eris.Wrap(err, "loader: parse referrals json")
			}
			return out, nil
		}
		var r model.ReferralRecord
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return nil, eris.Wrap(err, "loader: parse referral json")
		}
		return []model.ReferralRecord{r}, nil

	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, eris.Wrap(err, "loader: parse referrals yaml")
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			var out []model.ReferralRecord
			if err := node.Decode(&out); err != nil {
				return nil, eris.Wrap(err, "loader: decode referrals yaml")
			}
			return out, nil
		}
		var r model.ReferralRecord
		if err := node.Decode(&r); err != nil {
			return nil, eris.Wrap(err, "loader: decode referral yaml")
		}
		return []model.ReferralRecord{r}, nil
	}
	return nil, eris.Errorf("loader: referrals cannot be parsed from %s", format)
}
