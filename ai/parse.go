package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"posterpro/common"
)

// MissingReferences replaces an empty References field
const MissingReferences = "[Reference details not found]"

// keyAliases maps normalized response keys onto fields
var keyAliases = map[string]common.Field{
	"headline":     common.FieldHeadline,
	"title":        common.FieldTitle,
	"subtitle":     common.FieldSubtitle,
	"authors":      common.FieldAuthors,
	"author":       common.FieldAuthors,
	"affiliations": common.FieldAffiliations,
	"affiliation":  common.FieldAffiliations,
	"abstract":     common.FieldAbstract,
	"introduction": common.FieldIntroduction,
	"background":   common.FieldIntroduction,
	"objective":    common.FieldObjective,
	"objectives":   common.FieldObjective,
	"aim":          common.FieldObjective,
	"aims":         common.FieldObjective,
	"methods":      common.FieldMethods,
	"method":       common.FieldMethods,
	"methodology":  common.FieldMethods,
	"results":      common.FieldResults,
	"result":       common.FieldResults,
	"discussion":   common.FieldDiscussion,
	"conclusions":  common.FieldConclusions,
	"conclusion":   common.FieldConclusions,
	"references":   common.FieldReferences,
	"reference":    common.FieldReferences,
	"bibliography": common.FieldReferences,
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(k)
	return k
}

// ParseResponse turns a model reply into ExtractedContent. JSON is
// preferred; replies without a JSON object are read as "SECTION:" blocks.
func ParseResponse(raw string) (*common.ExtractedContent, error) {
	text := stripFences(raw)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty model response: %w", common.ErrExtractionFailed)
	}

	var content *common.ExtractedContent
	if obj, ok := extractObject(text); ok {
		values, err := decodeObject(obj)
		if err != nil {
			return nil, fmt.Errorf("malformed model response: %v: %w", err, common.ErrExtractionFailed)
		}
		content = contentFromMap(values)
	} else {
		content = parseSections(text)
	}

	if content.IsEmpty() {
		return nil, fmt.Errorf("model response had none of the expected keys: %w", common.ErrExtractionFailed)
	}
	content.References = CleanReferences(content.References)
	return content, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, fence := range []string{"```json", "```JSON", "```python", "```"} {
		s = strings.TrimPrefix(s, fence)
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractObject returns the text from the first '{' to the last '}'. A
// reply cut off mid-object returns everything from the first '{'.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return s[start:], true
	}
	return s[start : end+1], true
}

func decodeObject(obj string) (map[string]any, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(obj), &values); err == nil {
		return values, nil
	}

	repaired, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return nil, fmt.Errorf("repair json: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &values); err != nil {
		return nil, fmt.Errorf("decode repaired json: %w", err)
	}
	return values, nil
}

func contentFromMap(values map[string]any) *common.ExtractedContent {
	content := &common.ExtractedContent{}

	// Exact key spellings win over aliases when both are present.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		_, ei := common.ParseField(keys[i])
		_, ej := common.ParseField(keys[j])
		if ei != ej {
			return !ei
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		f, ok := keyAliases[normalizeKey(k)]
		if !ok {
			continue
		}
		if v := flatten(values[k]); v != "" {
			content.Set(f, v)
		}
	}
	return content
}

// flatten renders any JSON value as plain text
func flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		var lines []string
		for _, item := range t {
			if s := flatten(item); s != "" {
				lines = append(lines, s)
			}
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var lines []string
		for _, k := range keys {
			if s := flatten(t[k]); s != "" {
				lines = append(lines, k+": "+s)
			}
		}
		return strings.Join(lines, "\n")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

var sectionHeaders = []struct {
	header string
	field  common.Field
}{
	{"HEADLINE:", common.FieldHeadline},
	{"TITLE:", common.FieldTitle},
	{"SUBTITLE:", common.FieldSubtitle},
	{"AUTHORS:", common.FieldAuthors},
	{"AFFILIATIONS:", common.FieldAffiliations},
	{"ABSTRACT:", common.FieldAbstract},
	{"INTRODUCTION:", common.FieldIntroduction},
	{"BACKGROUND:", common.FieldIntroduction},
	{"OBJECTIVES:", common.FieldObjective},
	{"OBJECTIVE:", common.FieldObjective},
	{"METHODOLOGY:", common.FieldMethods},
	{"METHODS:", common.FieldMethods},
	{"RESULTS:", common.FieldResults},
	{"DISCUSSION:", common.FieldDiscussion},
	{"CONCLUSIONS:", common.FieldConclusions},
	{"CONCLUSION:", common.FieldConclusions},
	{"REFERENCES:", common.FieldReferences},
}

// parseSections reads "HEADER: text" blocks. Bullet lines are kept one per
// line with a "• " marker.
func parseSections(text string) *common.ExtractedContent {
	content := &common.ExtractedContent{}
	var current common.Field
	var buf strings.Builder

	save := func() {
		if current == "" {
			return
		}
		var lines []string
		for _, line := range strings.Split(buf.String(), "\n") {
			trimmed := strings.TrimSpace(line)
			switch {
			case trimmed == "":
				continue
			case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
				lines = append(lines, "• "+strings.TrimSpace(trimmed[2:]))
			default:
				lines = append(lines, trimmed)
			}
		}
		content.Set(current, strings.Join(lines, "\n"))
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(strings.TrimSpace(line), "#* ")
		upper := strings.ToUpper(trimmed)
		found := false
		for _, h := range sectionHeaders {
			if strings.HasPrefix(upper, h.header) {
				save()
				current = h.field
				buf.Reset()
				if rest := strings.TrimSpace(trimmed[len(h.header):]); rest != "" {
					buf.WriteString(strings.Trim(rest, "*"))
					buf.WriteString("\n")
				}
				found = true
				break
			}
		}
		if !found && current != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	save()
	return content
}

// CleanReferences tidies stray separators and substitutes a placeholder
// for an empty list.
func CleanReferences(ref string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(ref), MissingReferences, "")
	cleaned = strings.ReplaceAll(cleaned, ", ,", ",")
	cleaned = strings.ReplaceAll(cleaned, " ,", ",")
	cleaned = strings.Trim(cleaned, ",; .\n")
	if strings.TrimSpace(cleaned) == "" {
		return MissingReferences
	}
	return strings.TrimSpace(cleaned)
}
