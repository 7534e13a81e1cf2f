package crate

import "github.com/kernel/crate/lib/spec"

// Extension is appended to a guessed crate name
const Extension = ".crate"

// GuessName derives the crate name from what the spec runs: the base name of the run
// executable, else the first word of the first service.
func GuessName(s *spec.Spec) (string, error) {
	if name := s.ExecutableName(); name != "" {
		return name, nil
	}
	if name := s.FirstServiceName(); name != "" {
		return name, nil
	}
	return "", ErrNoCrateName
}

// OutputPath returns output when set, else the guessed name with Extension
func OutputPath(s *spec.Spec, output string) (string, error) {
	if output != "" {
		return output, nil
	}
	name, err := GuessName(s)
	if err != nil {
		return "", err
	}
	return name + Extension, nil
}
