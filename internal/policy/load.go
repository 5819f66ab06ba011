package policy

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/randomparity/vpo/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load parses and validates one policy document. Expressions inside
// conditional rules and synthesis conditions are compiled here so a bad
// expression fails at load time, not mid-run.
func Load(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	if err := p.finish(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	return &p, nil
}

// LoadFile loads a policy document from disk.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrConfig, path, err)
	}
	p, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Serialize renders a policy back to YAML. Load(Serialize(p)) equals p
// for every valid policy.
func Serialize(p *Policy) ([]byte, error) {
	return yaml.Marshal(p)
}

// finish validates the decoded document and compiles its expressions.
func (p *Policy) finish() error {
	if p.SchemaVersion == 0 {
		return fmt.Errorf("schema_version is required")
	}
	if p.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("schema_version %d is newer than supported version %d",
			p.SchemaVersion, CurrentSchemaVersion)
	}
	if err := validate.Struct(p); err != nil {
		return err
	}

	for pi := range p.Phases {
		phase := &p.Phases[pi]
		if err := phase.finish(); err != nil {
			return fmt.Errorf("phase %q: %w", phase.Name, err)
		}
	}
	return nil
}

func (ph *Phase) finish() error {
	if ph.Rules != nil {
		if ph.Rules.Mode == "" {
			ph.Rules.Mode = "all"
		}
		for ri := range ph.Rules.Rules {
			rule := &ph.Rules.Rules[ri]
			if err := rule.When.compile(); err != nil {
				return fmt.Errorf("rule %q: %w", rule.Name, err)
			}
			for _, action := range rule.Then {
				if err := action.validate(); err != nil {
					return fmt.Errorf("rule %q then: %w", rule.Name, err)
				}
			}
			for _, action := range rule.Else {
				if err := action.validate(); err != nil {
					return fmt.Errorf("rule %q else: %w", rule.Name, err)
				}
			}
		}
	}

	for si := range ph.Synthesis {
		def := &ph.Synthesis[si]
		if !SynthesisNameSafe(def.Name) {
			return fmt.Errorf("synthesis name %q must not contain path separators or '..'", def.Name)
		}
		if _, ok := parsePosition(def.Position); !ok {
			return fmt.Errorf("synthesis %q: invalid position %q", def.Name, def.Position)
		}
		if def.CreateIf != nil {
			if err := def.CreateIf.compile(); err != nil {
				return fmt.Errorf("synthesis %q create_if: %w", def.Name, err)
			}
		}
		for _, pref := range def.SourcePreferences {
			if len(pref.Language) == 0 && !pref.NotCommentary && pref.Channels == nil && len(pref.Codec) == 0 {
				return fmt.Errorf("synthesis %q: preference criterion must set at least one of language, not_commentary, channels, codec", def.Name)
			}
		}
	}

	if ph.SkipWhen != nil {
		if err := ph.SkipWhen.validateLiterals(); err != nil {
			return err
		}
	}
	return nil
}

// validateLiterals checks the size and duration literals so bad values
// fail at load time.
func (s *SkipWhen) validateLiterals() error {
	for name, value := range map[string]string{
		"file_size_under": s.FileSizeUnder,
		"file_size_over":  s.FileSizeOver,
	} {
		if value == "" {
			continue
		}
		if _, err := domain.ParseSize(value); err != nil {
			return fmt.Errorf("skip_when.%s: %w", name, err)
		}
	}
	for name, value := range map[string]string{
		"duration_under": s.DurationUnder,
		"duration_over":  s.DurationOver,
	} {
		if value == "" {
			continue
		}
		if _, err := domain.ParseDurationSpec(value); err != nil {
			return fmt.Errorf("skip_when.%s: %w", name, err)
		}
	}
	return nil
}
