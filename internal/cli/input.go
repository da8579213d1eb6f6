package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oscillometry-report-server/internal/domain"
)

// ComputeInput is the file accepted by the compute command. JSON is valid YAML, so both
// formats decode the same way:
//
//	precision: 2
//	cells:
//	  G7: "0,45"
//	  J7: "0,38"
type ComputeInput struct {
	Precision *int              `yaml:"precision"`
	Cells     map[string]string `yaml:"cells"`
}

// ReadComputeInput decodes and validates a compute input file. Cell keys are
// case-insensitive.
func ReadComputeInput(r io.Reader) (map[domain.CellKey]string, *int, error) {
	var in ComputeInput
	if err := yaml.NewDecoder(r).Decode(&in); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("failed to parse input: %w", err)
	}

	keys := make([]string, 0, len(in.Cells))
	for k := range in.Cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cells := make(map[domain.CellKey]string, len(in.Cells))
	for _, k := range keys {
		v := strings.TrimSpace(in.Cells[k])
		key := domain.CellKey(strings.ToUpper(strings.TrimSpace(k)))
		if !key.IsValid() {
			return nil, nil, domain.NewCellError(key, v, domain.ErrUnknownCell)
		}
		if !domain.IsValidCellValue(v) {
			return nil, nil, domain.NewCellError(key, v, domain.ErrInvalidCell)
		}
		cells[key] = v
	}
	return cells, in.Precision, nil
}
