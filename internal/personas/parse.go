package personas

import (
	"strconv"
	"strings"

	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/types"
)

// Column names of the personas sheet
const (
	ColSerial              = "serial"
	ColCredentials         = "credentials"
	ColDisplayName         = "display_name"
	ColEnabled             = "enabled"
	ColPreferenceTags      = "preference_tags"
	ColExclusionTags       = "exclusion_tags"
	ColMaxDailyAssignments = "max_daily_assignments"

	stylePrefix = "style_"
)

// RequiredColumns must be present in the header and non-empty on every persona row
var RequiredColumns = []string{ColSerial, ColCredentials}

// Parse converts personas sheet rows (header first) into profiles.
// Optional columns fall back to defaults; required ones fail with *ConfigurationError.
func Parse(sheet string, rows [][]string) ([]types.PersonaProfile, error) {
	if len(rows) == 0 {
		return nil, &ConfigurationError{Sheet: sheet, Message: "sheet is empty, header row expected"}
	}

	header := store.ParseHeader(rows[0])
	if missing := header.Missing(RequiredColumns); len(missing) > 0 {
		return nil, &ConfigurationError{
			Sheet:   sheet,
			Row:     1,
			Column:  missing[0],
			Message: "required column missing from header: " + strings.Join(missing, ", "),
		}
	}

	styleCols := header.WithPrefix(stylePrefix)
	seen := make(map[string]int)
	var profiles []types.PersonaProfile

	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlank(row) {
			continue
		}

		p := types.PersonaProfile{
			Serial:              header.Get(row, ColSerial),
			Credentials:         header.Get(row, ColCredentials),
			DisplayName:         header.Get(row, ColDisplayName),
			Enabled:             true,
			PreferenceTags:      types.SplitList(header.Get(row, ColPreferenceTags)),
			ExclusionTags:       types.SplitList(header.Get(row, ColExclusionTags)),
			MaxDailyAssignments: types.DefaultMaxDailyAssignments,
		}

		for _, col := range RequiredColumns {
			if header.Get(row, col) == "" {
				return nil, &ConfigurationError{Sheet: sheet, Row: rowNum, Column: col, Message: "required value is empty"}
			}
		}
		if prev, dup := seen[p.Serial]; dup {
			return nil, &ConfigurationError{
				Sheet: sheet, Row: rowNum, Column: ColSerial,
				Message: "duplicate serial " + p.Serial + " (first seen on row " + strconv.Itoa(prev) + ")",
			}
		}
		seen[p.Serial] = rowNum

		if raw := header.Get(row, ColEnabled); raw != "" {
			enabled, ok := parseBool(raw)
			if !ok {
				return nil, &ConfigurationError{Sheet: sheet, Row: rowNum, Column: ColEnabled, Message: "not a boolean: " + raw}
			}
			p.Enabled = enabled
		}

		if raw := header.Get(row, ColMaxDailyAssignments); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return nil, &ConfigurationError{
					Sheet: sheet, Row: rowNum, Column: ColMaxDailyAssignments,
					Message: "must be a non-negative integer", Cause: err,
				}
			}
			p.MaxDailyAssignments = n
		}

		if p.DisplayName == "" {
			p.DisplayName = p.Serial
		}

		for _, col := range styleCols {
			if v := header.Get(row, col); v != "" {
				if p.StyleParams == nil {
					p.StyleParams = make(map[string]string)
				}
				p.StyleParams[strings.TrimPrefix(col, stylePrefix)] = v
			}
		}

		profiles = append(profiles, p)
	}

	return profiles, nil
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on", "是", "v":
		return true, true
	case "false", "0", "no", "n", "off", "否", "x":
		return false, true
	}
	return false, false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
