package detection

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed preset.schema.json
var presetSchema []byte

var presetSchemaLoader = gojsonschema.NewBytesLoader(presetSchema)

// Params are the detector thresholds.
type Params struct {
	Conf  float64 `json:"conf" yaml:"conf"`
	Imgsz int     `json:"imgsz" yaml:"imgsz"`
	Iou   float64 `json:"iou" yaml:"iou"`
}

// Region is an axis-aligned pixel rectangle [x1, y1, x2, y2].
type Region [4]int

// Preset is the externally supplied detection setup. No regions means the
// whole frame is searched.
type Preset struct {
	Params  Params   `json:"params" yaml:"params"`
	Regions []Region `json:"regions" yaml:"regions"`
}

// DefaultParams match the stock model settings.
var DefaultParams = Params{Conf: 0.25, Imgsz: 480, Iou: 0.7}

// DefaultPreset searches the whole frame with DefaultParams.
func DefaultPreset() Preset {
	return Preset{Params: DefaultParams}
}

// LoadPreset reads a preset file. Files ending in .yaml or .yml are parsed
// as YAML, anything else as JSON. Both forms are checked against the same
// schema.
func LoadPreset(path string) (Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, fmt.Errorf("read preset: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParsePresetYAML(b)
	default:
		return ParsePreset(b)
	}
}

// ParsePresetYAML converts YAML to JSON and hands it to ParsePreset.
func ParsePresetYAML(b []byte) (Preset, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Preset{}, fmt.Errorf("decode preset yaml: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return Preset{}, fmt.Errorf("decode preset yaml: %w", err)
	}
	return ParsePreset(js)
}

// ParsePreset validates and decodes a JSON preset.
func ParsePreset(b []byte) (Preset, error) {
	res, err := gojsonschema.Validate(presetSchemaLoader, gojsonschema.NewBytesLoader(b))
	if err != nil {
		return Preset{}, fmt.Errorf("decode preset: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Preset{}, fmt.Errorf("invalid preset: %s", strings.Join(msgs, "; "))
	}

	var p Preset
	if err := json.Unmarshal(b, &p); err != nil {
		return Preset{}, fmt.Errorf("decode preset: %w", err)
	}
	for i, r := range p.Regions {
		if r[2] <= r[0] || r[3] <= r[1] {
			return Preset{}, fmt.Errorf("invalid preset: region %d %v is empty", i, r)
		}
	}
	return p, nil
}
