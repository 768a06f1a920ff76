// Package importer turns policy spreadsheets into catalogue entries.
package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mroshb/statecraft/internal/models"
	"github.com/mroshb/statecraft/internal/security"
	"github.com/mroshb/statecraft/pkg/utils"
)

// RowError reports a spreadsheet row that could not be imported.
type RowError struct {
	Sheet string
	Row   int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Sheet, e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ReadWorkbook parses every sheet of an .xlsx file. The first row of each
// sheet is the header.
func ReadWorkbook(path string) ([]models.Policy, []error, error) {
	if !security.ValidateFileType(path, []string{".xlsx", ".xlsm"}) {
		return nil, nil, fmt.Errorf("unsupported workbook type: %s", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var (
		policies []models.Policy
		problems []error
	)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			problems = append(problems, fmt.Errorf("read sheet %s: %w", sheet, err))
			continue
		}
		parsed, errs := ParsePolicyRows(sheet, rows)
		policies = append(policies, parsed...)
		problems = append(problems, errs...)
	}
	return policies, problems, nil
}

// ParsePolicyRows converts rows into policies. Bad rows are reported and skipped.
// Header names are matched loosely ("Min Authority" and "min_authority" are
// the same column); unknown columns are ignored.
func ParsePolicyRows(sheet string, rows [][]string) ([]models.Policy, []error) {
	if len(rows) == 0 {
		return nil, nil
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[utils.Slugify(name)] = i
	}
	if _, ok := header["name"]; !ok {
		return nil, []error{&RowError{Sheet: sheet, Row: 1, Err: fmt.Errorf("missing name column")}}
	}

	var (
		policies []models.Policy
		problems []error
	)
	for i, row := range rows[1:] {
		cell := func(column string) string {
			idx, ok := header[column]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if isBlank(row) {
			continue
		}

		p, err := parseRow(cell, header)
		if err != nil {
			problems = append(problems, &RowError{Sheet: sheet, Row: i + 2, Err: err})
			continue
		}
		policies = append(policies, p)
	}
	return policies, problems
}

func parseRow(cell func(string) string, header map[string]int) (models.Policy, error) {
	p := models.Policy{
		Name:        security.SanitizeName(cell("name")),
		Description: security.SanitizeDescription(cell("description")),
		Effects:     models.NeutralEffects(),
	}
	if p.Name == "" {
		return p, fmt.Errorf("name is empty")
	}

	p.ID = cell("id")
	if p.ID == "" {
		p.ID = utils.Slugify(p.Name)
	}
	if !security.ValidatePolicyID(p.ID) {
		return p, fmt.Errorf("invalid policy id %q", p.ID)
	}

	var err error
	if p.Cost, err = parseNumber(cell("cost"), 0); err != nil {
		return p, fmt.Errorf("cost: %w", err)
	}
	if p.DurationDays, err = parseDuration(cell("duration_days")); err != nil {
		return p, fmt.Errorf("duration_days: %w", err)
	}
	if p.MinAuthority, err = parseNumber(cell("min_authority"), 0); err != nil {
		return p, fmt.Errorf("min_authority: %w", err)
	}
	if p.MaxDecadence, err = parseNumber(cell("max_decadence"), models.MaxDecadence); err != nil {
		return p, fmt.Errorf("max_decadence: %w", err)
	}
	if p.SettlementOnly, err = parseBool(cell("settlement_only")); err != nil {
		return p, fmt.Errorf("settlement_only: %w", err)
	}
	for _, name := range utils.SplitList(cell("allowed_governments")) {
		mode, err := models.ParseGovernmentMode(name)
		if err != nil {
			return p, err
		}
		p.AllowedGovernments = append(p.AllowedGovernments, mode)
	}

	for column, field := range effectFields(&p.Effects) {
		if _, ok := header[column]; !ok {
			continue
		}
		if *field, err = parseNumber(cell(column), 1); err != nil {
			return p, fmt.Errorf("%s: %w", column, err)
		}
	}

	return p, p.Validate()
}

func effectFields(e *models.PolicyEffects) map[string]*float64 {
	return map[string]*float64{
		"tax":               &e.Tax,
		"trade":             &e.Trade,
		"economy":           &e.Economy,
		"authority_gain":    &e.AuthorityGain,
		"decadence_gain":    &e.DecadenceGain,
		"resource_output":   &e.ResourceOutput,
		"spending":          &e.Spending,
		"upkeep":            &e.Upkeep,
		"plot_cost":         &e.PlotCost,
		"plot_tax":          &e.PlotTax,
		"town_block_cost":   &e.TownBlockCost,
		"town_block_bonus":  &e.TownBlockBonus,
		"resident_capacity": &e.ResidentCapacity,
	}
}

// parseNumber accepts "1.25", "1,25" and "125%". Empty cells give def.
func parseNumber(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if percent {
		v /= 100
	}
	return v, nil
}

func parseDuration(s string) (int, error) {
	switch strings.ToLower(s) {
	case "permanent", "forever", "-1":
		return models.PermanentDuration, nil
	case "":
		return 0, fmt.Errorf("duration is required")
	}
	days, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a day count: %q", s)
	}
	return days, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "no", "n", "false", "0":
		return false, nil
	case "yes", "y", "true", "1", "x":
		return true, nil
	}
	return false, fmt.Errorf("not a yes/no value: %q", s)
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
