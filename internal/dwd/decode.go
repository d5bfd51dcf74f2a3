package dwd

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/dwd-warning-service/internal/models"
)

const (
	// DefaultColor is used when a warning carries no color attribute.
	DefaultColor = "#cccccc"

	// MaxWarningCount caps the decoded warning_count of one entity.
	MaxWarningCount = 100

	attrWarningCount = "warning_count"
	attrLastUpdate   = "last_update"
)

// Per-warning attribute suffixes, read as warning_<i>_<field>.
const (
	fieldHeadline    = "headline"
	fieldName        = "name"
	fieldStart       = "start"
	fieldEnd         = "end"
	fieldColor       = "color"
	fieldType        = "type"
	fieldLevel       = "level"
	fieldDescription = "description"
	fieldInstruction = "instruction"
	fieldParameters  = "parameters"
)

// Decode builds the WarningSet for sourceID from snap.
// A missing entity or an entity without attributes yields an empty set.
func Decode(snap *models.Snapshot, sourceID string) models.WarningSet {
	entity := snap.Get(sourceID)
	if entity == nil || entity.Attributes == nil {
		return emptySet()
	}
	attrs := entity.Attributes

	count := coerceCount(attrs[attrWarningCount])
	set := models.WarningSet{
		Warnings:     make([]models.Warning, 0, count),
		WarningCount: count,
		LastUpdate:   optionalString(attrs[attrLastUpdate]),
	}
	for i := 1; i <= count; i++ {
		set.Warnings = append(set.Warnings, decodeWarning(attrs, i))
	}
	return set
}

// Count returns the decoded warning count of sourceID without building the warnings.
func Count(snap *models.Snapshot, sourceID string) int {
	entity := snap.Get(sourceID)
	if entity == nil || entity.Attributes == nil {
		return 0
	}
	return coerceCount(entity.Attributes[attrWarningCount])
}

func emptySet() models.WarningSet {
	return models.WarningSet{Warnings: []models.Warning{}}
}

func warningKey(index int, field string) string {
	return "warning_" + strconv.Itoa(index) + "_" + field
}

func decodeWarning(attrs map[string]interface{}, index int) models.Warning {
	get := func(field string) interface{} {
		return attrs[warningKey(index, field)]
	}
	return models.Warning{
		Headline:    stringOr(get(fieldHeadline), ""),
		Name:        optionalString(get(fieldName)),
		Start:       stringOr(get(fieldStart), ""),
		End:         stringOr(get(fieldEnd), ""),
		Color:       stringOr(get(fieldColor), DefaultColor),
		Type:        typeCode(get(fieldType)),
		Level:       optionalInt(get(fieldLevel)),
		Description: optionalString(get(fieldDescription)),
		Instruction: optionalString(get(fieldInstruction)),
		Parameters:  stringMap(get(fieldParameters)),
	}
}

// coerceCount treats absent, falsy, negative and non-numeric counts as zero.
// Fractional counts are floored, matching a 1..n inclusive loop.
// Counts above MaxWarningCount are clamped to it.
func coerceCount(v interface{}) int {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || f < 1 {
		return 0
	}
	if f > MaxWarningCount {
		return MaxWarningCount
	}
	return int(math.Floor(f))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// stringOr returns def for nil and empty values, the string form otherwise.
func stringOr(v interface{}, def string) string {
	s := optionalString(v)
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func optionalString(v interface{}) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

func optionalInt(v interface{}) *int {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}

// typeCode keeps string codes as-is and normalises integral numbers to int.
func typeCode(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return int(t)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		return t.String()
	default:
		return t
	}
}

func stringMap(v interface{}) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if s := optionalString(val); s != nil {
				out[k] = *s
			}
		}
		return out
	default:
		return nil
	}
}
