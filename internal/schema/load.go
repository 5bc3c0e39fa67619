package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Input is everything one generator run reads: the current and previous
// schema versions and the change directive. It is immutable for the run.
type Input struct {
	Current  *Model
	Previous *Model
	Changes  ChangeDirective
}

// Load parses the current schema, the previous schema and the change
// directive. A missing previous schema is an empty model (first run); a
// missing directive is an empty directive.
func Load(currentPath, previousPath, changesPath string) (*Input, error) {
	current, err := ParseFile(currentPath)
	if err != nil {
		return nil, err
	}

	previous := NewModel(nil)
	if previousPath != "" {
		previous, err = ParseFile(previousPath)
		if errors.Is(err, fs.ErrNotExist) {
			previous = NewModel(nil)
		} else if err != nil {
			return nil, fmt.Errorf("previous schema: %w", err)
		}
	}

	var changes ChangeDirective
	if changesPath != "" {
		data, err := os.ReadFile(changesPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading change directive: %w", err)
		default:
			changes, err = ParseChanges(data)
			if err != nil {
				return nil, err
			}
		}
	}
	if err := changes.Validate(current); err != nil {
		return nil, err
	}

	return &Input{Current: current, Previous: previous, Changes: changes}, nil
}
