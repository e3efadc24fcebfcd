package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a named persona for the transformation stage.
type Profile struct {
	SystemPrompt string `yaml:"system_prompt"`
	Model        string `yaml:"model,omitempty"`       // overrides TRANSFORM_MODEL
	TTSBackend   string `yaml:"tts_backend,omitempty"` // overrides TTS_BACKEND
}

type profilesFile struct {
	Personas map[string]Profile `yaml:"personas"`
}

// BuiltinProfiles returns the personas available without a profiles file.
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		"polite": {
			SystemPrompt: "You are a helpful assistant that rephrases text to be more polite and nice.",
		},
		"truth": {
			SystemPrompt: "You are an assistant that takes polite, carefully worded text and rephrases it " +
				"as the dirty and raw truth of what the speaker actually means, with a sense of humor.",
			TTSBackend: BackendElevenLabs,
		},
	}
}

// LoadProfiles reads personas from a YAML file of the form
//
//	personas:
//	  pirate:
//	    system_prompt: "Rephrase everything like a pirate."
//	    model: gpt-4o-mini
func LoadProfiles(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}
	for name, p := range f.Personas {
		if p.SystemPrompt == "" {
			return nil, fmt.Errorf("persona %q in %s has no system_prompt", name, path)
		}
	}
	return f.Personas, nil
}
