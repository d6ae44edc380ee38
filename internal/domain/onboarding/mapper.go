package onboarding

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/FACorreiaa/peakheight-api/internal/types"
)

// workoutFrequencies normalizes the quiz bucket ids to the stored vocabulary.
var workoutFrequencies = map[string]string{
	"0-2":       "rarely",
	"3-4":       "sometimes",
	"5-7":       "often",
	"never":     "never",
	"rarely":    "rarely",
	"sometimes": "sometimes",
	"often":     "often",
	"daily":     "daily",
}

// scalarColumns are copied 1:1 when present.
var scalarColumns = []struct{ key, column string }{
	{"fatherFeet", "father_feet"},
	{"fatherInches", "father_inches"},
	{"motherFeet", "mother_feet"},
	{"motherInches", "mother_inches"},
	{"parentMeasurementSystem", "parent_measurement_system"},
	{"motivation", "motivation"},
	{"ethnicity", "ethnicity"},
	{"footSizeSystem", "foot_size_system"},
	{"sleepHours", "sleep_hours"},
}

var listColumns = []struct{ key, column string }{
	{"barriers", "barriers"},
	{"triedOptions", "tried_options"},
	{"stoppingGoals", "stopping_goals"},
}

// MapDraft turns the accumulated draft answers into a users row patch.
// Only presence is checked; values of the wrong type are passed through for the
// store to reject. Unknown keys are ignored.
func MapDraft(data map[string]any, now time.Time) types.UserPatch {
	patch := types.UserPatch{
		"updated_at":           now.UTC(),
		"onboarding_completed": true,
	}

	if v, ok := present(data, "gender"); ok {
		if s, isStr := v.(string); isStr {
			patch["gender"] = strings.ToLower(s)
		} else {
			patch["gender"] = v
		}
	}

	if dob, ok := dateOfBirth(data, now); ok {
		patch["date_of_birth"] = dob
	}

	if h, ok := firstPresent(data, "currentHeight", "cm"); ok {
		patch["current_height"] = h
	} else if cm, ok := imperialToCm(data, "feet", "inches"); ok {
		patch["current_height"] = cm
	}

	if h, ok := firstPresent(data, "dreamHeight", "targetHeight", "dreamCm"); ok {
		patch["target_height"] = h
	} else if cm, ok := imperialToCm(data, "dreamFeet", "dreamInches"); ok {
		patch["target_height"] = cm
	}

	mapParentHeight(data, patch, "father", "fatherCm", "parentHeightFather", "father_cm", "parent_height_father")
	mapParentHeight(data, patch, "mother", "motherCm", "parentHeightMother", "mother_cm", "parent_height_mother")

	for _, c := range scalarColumns {
		if v, ok := present(data, c.key); ok {
			patch[c.column] = v
		}
	}
	if v, ok := firstPresent(data, "footSize", "foot_size"); ok {
		patch["foot_size"] = v
	}

	for _, c := range listColumns {
		if v, ok := stringList(data[c.key]); ok {
			patch[c.column] = v
		}
	}

	if v, ok := present(data, "workoutFrequency"); ok {
		patch["workout_frequency"] = v
		if s, isStr := v.(string); isStr {
			if mapped, known := workoutFrequencies[s]; known {
				patch["workout_frequency"] = mapped
			}
		}
	}

	if b, ok := data["smokingStatus"].(bool); ok {
		patch["smoking_status"] = b
	}
	if b, ok := data["drinkingStatus"].(bool); ok {
		patch["drinking_status"] = b
	}

	if v, ok := present(data, "userName"); ok {
		patch["display_name"] = v
		if s, isStr := v.(string); isStr {
			first, last := splitName(s)
			if first != "" {
				patch["first_name"] = first
			}
			if last != "" {
				patch["last_name"] = last
			}
		}
	}

	return patch
}

// mapParentHeight copies the flat cm field and fills the nested-shape column
// only when a nested or parentHeightX answer exists; the flat cm value wins.
func mapParentHeight(data map[string]any, patch types.UserPatch, parent, cmKey, flatKey, cmColumn, nestedColumn string) {
	cm, hasCm := present(data, cmKey)
	if hasCm {
		patch[cmColumn] = cm
	}

	nested, hasNested := nestedParentHeight(data, parent)
	if !hasNested {
		nested, hasNested = present(data, flatKey)
	}
	if !hasNested {
		return
	}
	if hasCm {
		patch[nestedColumn] = cm
		return
	}
	patch[nestedColumn] = nested
}

func nestedParentHeight(data map[string]any, parent string) (any, bool) {
	obj, ok := data["parentHeight"].(map[string]any)
	if !ok {
		return nil, false
	}
	return present(obj, parent)
}

func dateOfBirth(data map[string]any, now time.Time) (any, bool) {
	if v, ok := present(data, "dateOfBirth"); ok {
		s, isStr := v.(string)
		if !isStr {
			return v, true
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC().Format(time.DateOnly), true
		}
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			return t.Format(time.DateOnly), true
		}
		return s, true
	}

	age, ok := number(data["age"])
	if !ok || age <= 0 {
		return nil, false
	}
	year := now.Year() - int(age)
	return strconv.Itoa(year) + "-01-01", true
}

func imperialToCm(data map[string]any, feetKey, inchesKey string) (float64, bool) {
	feet, ok := number(data[feetKey])
	if !ok || feet <= 0 {
		return 0, false
	}
	inches, _ := number(data[inchesKey])
	cm := (feet*12 + inches) * 2.54
	return math.Round(cm*10) / 10, true
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	idx := strings.IndexFunc(name, unicode.IsSpace)
	if idx < 0 {
		return name, ""
	}
	return name[:idx], strings.TrimSpace(name[idx:])
}

func firstPresent(data map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := present(data, k); ok {
			return v, true
		}
	}
	return nil, false
}

// present treats nil, "", 0 and false as absent answers.
func present(data map[string]any, key string) (any, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return nil, false
	}
	switch x := v.(type) {
	case string:
		return v, x != ""
	case bool:
		return v, x
	case float64:
		return v, x != 0
	case int:
		return v, x != 0
	case json.Number:
		return v, x != "" && x != "0"
	}
	return v, true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// stringList accepts JSON arrays; arrays of strings are normalized to []string,
// anything else array-shaped is passed through.
func stringList(v any) (any, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return x, true
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
