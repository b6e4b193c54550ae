package inference

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadLabels reads one label per line, skipping blank lines.
func ReadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open label file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read label file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file %s is empty", path)
	}
	return labels, nil
}

// alignLabels matches labels to the model output width. ImageNet label files
// often carry a leading "background" entry the model itself does not output.
func alignLabels(labels []string, classes int) ([]string, error) {
	switch {
	case len(labels) == classes:
		return labels, nil
	case len(labels) == classes+1 && strings.EqualFold(labels[0], "background"):
		return labels[1:], nil
	default:
		return nil, fmt.Errorf("%w: %d labels, %d outputs", ErrLabelMismatch, len(labels), classes)
	}
}
