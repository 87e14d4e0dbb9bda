package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pneumoscan/internal/domain/entity"
)

// Файлы манифестов в каталоге моделей
const (
	ImageManifest     = "image.yaml"
	ValidatorManifest = "validator.yaml"
	SymptomManifest   = "symptom.yaml"
)

type imageManifest struct {
	Name          string  `yaml:"name"`
	Model         string  `yaml:"model"`
	Architecture  string  `yaml:"architecture"`
	WeightsIndex  string  `yaml:"weights_index"`
	Head          string  `yaml:"head"`
	InputSize     int     `yaml:"input_size"`
	Channels      int     `yaml:"channels"`
	Layout        string  `yaml:"layout"`
	Threshold     float64 `yaml:"threshold"`
	Input         string  `yaml:"input"`
	ScoreOutput   string  `yaml:"score_output"`
	FeatureOutput string  `yaml:"feature_output"`
}

type validatorManifest struct {
	Name          string  `yaml:"name"`
	Model         string  `yaml:"model"`
	InputSize     int     `yaml:"input_size"`
	Channels      int     `yaml:"channels"`
	Layout        string  `yaml:"layout"`
	Threshold     float64 `yaml:"threshold"`
	PositiveClass string  `yaml:"positive_class"`
	Input         string  `yaml:"input"`
	Output        string  `yaml:"output"`
}

type symptomManifest struct {
	Name      string   `yaml:"name"`
	Model     string   `yaml:"model"`
	Vocab     string   `yaml:"vocab"`
	Labels    []string `yaml:"labels"`
	MaxLength int      `yaml:"max_length"`
	Lowercase bool     `yaml:"lowercase"`
	Inputs    struct {
		InputIDs      string `yaml:"input_ids"`
		AttentionMask string `yaml:"attention_mask"`
		TokenTypeIDs  string `yaml:"token_type_ids"`
	} `yaml:"inputs"`
	Output string `yaml:"output"`
}

// weightEntry строка индекса весов, выгруженного вместе с моделью
type weightEntry struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// LoadImage читает манифест классификатора снимков и определяет архитектуру.
// Любая неоднозначность считается ошибкой старта, а не запроса.
func LoadImage(dir string) (entity.ModelBundle, error) {
	var m imageManifest
	if err := readYAML(filepath.Join(dir, ImageManifest), &m); err != nil {
		return entity.ModelBundle{}, err
	}
	if m.Model == "" {
		return entity.ModelBundle{}, fmt.Errorf("%s: model is required", ImageManifest)
	}

	count := 0
	if m.WeightsIndex != "" {
		n, err := CountWeights(resolve(dir, m.WeightsIndex))
		if err != nil {
			return entity.ModelBundle{}, err
		}
		count = n
	}

	arch, err := entity.ResolveBackbone(m.Architecture, count)
	if err != nil {
		return entity.ModelBundle{}, fmt.Errorf("%s: %w", ImageManifest, err)
	}

	b := entity.ModelBundle{
		Name:          orDefault(m.Name, "image"),
		Architecture:  arch,
		InputSize:     m.InputSize,
		Channels:      m.Channels,
		Layout:        entity.Layout(orDefault(m.Layout, string(entity.LayoutNHWC))),
		Threshold:     m.Threshold,
		ModelPath:     resolve(dir, m.Model),
		InputName:     orDefault(m.Input, "input"),
		ScoreOutput:   orDefault(m.ScoreOutput, "output"),
		FeatureOutput: m.FeatureOutput,
	}
	if m.Head != "" {
		b.HeadPath = resolve(dir, m.Head)
	}
	if b.InputSize == 0 {
		b.InputSize = 224
	}
	if b.Channels == 0 {
		b.Channels = 3
	}
	if b.Threshold == 0 {
		b.Threshold = 0.5
	}
	if b.Threshold < 0 || b.Threshold > 1 {
		return entity.ModelBundle{}, fmt.Errorf("%s: threshold %.3f out of [0,1]", ImageManifest, b.Threshold)
	}
	return b, nil
}

// LoadValidator читает манифест валидатора. positive_class обязателен.
func LoadValidator(dir string) (entity.ValidatorBundle, error) {
	var m validatorManifest
	if err := readYAML(filepath.Join(dir, ValidatorManifest), &m); err != nil {
		return entity.ValidatorBundle{}, err
	}
	if m.Model == "" {
		return entity.ValidatorBundle{}, fmt.Errorf("%s: model is required", ValidatorManifest)
	}

	conv, err := entity.ParseScoreConvention(m.PositiveClass)
	if err != nil {
		return entity.ValidatorBundle{}, fmt.Errorf("%s: %w", ValidatorManifest, err)
	}

	b := entity.ValidatorBundle{
		Name:       orDefault(m.Name, "validator"),
		ModelPath:  resolve(dir, m.Model),
		InputSize:  m.InputSize,
		Channels:   m.Channels,
		Layout:     entity.Layout(orDefault(m.Layout, string(entity.LayoutNHWC))),
		Threshold:  m.Threshold,
		Convention: conv,
		InputName:  orDefault(m.Input, "input"),
		OutputName: orDefault(m.Output, "output"),
	}
	if b.InputSize == 0 {
		b.InputSize = 224
	}
	if b.Channels == 0 {
		b.Channels = 1
	}
	if b.Threshold == 0 {
		b.Threshold = entity.DefaultValidatorThreshold
	}
	return b, nil
}

// LoadSymptom читает манифест текстового классификатора.
func LoadSymptom(dir string) (entity.SymptomBundle, error) {
	var m symptomManifest
	if err := readYAML(filepath.Join(dir, SymptomManifest), &m); err != nil {
		return entity.SymptomBundle{}, err
	}
	if m.Model == "" || m.Vocab == "" {
		return entity.SymptomBundle{}, fmt.Errorf("%s: model and vocab are required", SymptomManifest)
	}

	labels := []entity.TextLabel{entity.TextNormal, entity.TextBacterial, entity.TextViral}
	if len(m.Labels) > 0 {
		labels = make([]entity.TextLabel, len(m.Labels))
		for i, l := range m.Labels {
			labels[i] = entity.TextLabel(l)
		}
	}
	if labels[0] != entity.TextNormal {
		return entity.SymptomBundle{}, fmt.Errorf("%s: first label must be %s", SymptomManifest, entity.TextNormal)
	}

	b := entity.SymptomBundle{
		Name:       orDefault(m.Name, "symptom"),
		ModelPath:  resolve(dir, m.Model),
		VocabPath:  resolve(dir, m.Vocab),
		Labels:     labels,
		MaxLength:  m.MaxLength,
		Lowercase:  m.Lowercase,
		InputIDs:   orDefault(m.Inputs.InputIDs, "input_ids"),
		Attention:  orDefault(m.Inputs.AttentionMask, "attention_mask"),
		TypeIDs:    m.Inputs.TokenTypeIDs,
		OutputName: orDefault(m.Output, "logits"),
	}
	if b.MaxLength == 0 {
		b.MaxLength = 128
	}
	return b, nil
}

// CountWeights возвращает число тензоров в индексе весов.
func CountWeights(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read weights index: %w", err)
	}
	var entries []weightEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("parse weights index: %w", err)
	}
	return len(entries), nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
