package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/ent0n29/mockinterview/internal/apperr"
	"github.com/ent0n29/mockinterview/internal/completion"
	"github.com/ent0n29/mockinterview/internal/session"
)

const (
	MinScore = 1
	MaxScore = 10
)

// Correction records one field the validator had to repair.
type Correction struct {
	Field     string
	Original  string
	Corrected string
	Reason    string
}

// Result is a validated report plus the repairs made to reach it.
type Result struct {
	Report      session.Report
	Corrections []Correction
}

// Parse validates raw model output against the report schema.
func Parse(raw string) (Result, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Result{}, err
	}

	var (
		res Result
		r   = &res.Report
	)

	scores := []struct {
		name string
		dst  *int
	}{
		{"technicalDepth", &r.TechnicalDepth},
		{"clarity", &r.Clarity},
		{"confidence", &r.Confidence},
	}
	for _, s := range scores {
		v, fix, err := parseScore(s.name, obj[s.name])
		if err != nil {
			return Result{}, err
		}
		*s.dst = v
		if fix != nil {
			res.Corrections = append(res.Corrections, *fix)
		}
	}

	lists := []struct {
		name string
		dst  *[]string
	}{
		{"strengths", &r.Strengths},
		{"weaknesses", &r.Weaknesses},
		{"suggestedImprovements", &r.SuggestedImprovements},
	}
	for _, l := range lists {
		v, fixes, err := parseStrings(l.name, obj[l.name])
		if err != nil {
			return Result{}, err
		}
		*l.dst = v
		res.Corrections = append(res.Corrections, fixes...)
	}

	answers, fixes, err := parseModelAnswers(obj["modelAnswers"])
	if err != nil {
		return Result{}, err
	}
	r.ModelAnswers = answers
	res.Corrections = append(res.Corrections, fixes...)

	if rawFeedback, ok := obj["overallFeedback"]; ok && !isNull(rawFeedback) {
		var feedback string
		if json.Unmarshal(rawFeedback, &feedback) == nil {
			r.OverallFeedback = strings.TrimSpace(feedback)
		} else {
			res.Corrections = append(res.Corrections, Correction{
				Field: "overallFeedback", Original: string(rawFeedback), Reason: "not a string, dropped",
			})
		}
	}

	return res, nil
}

// decodeObject parses strictly, then tries the single extraction fallback.
func decodeObject(raw string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err == nil && obj != nil {
		return obj, nil
	}
	extracted, ok := completion.ExtractObject(raw)
	if !ok {
		return nil, apperr.New(apperr.MalformedResponse, "evaluation is not a JSON object")
	}
	if err := json.Unmarshal([]byte(extracted), &obj); err != nil || obj == nil {
		return nil, apperr.New(apperr.MalformedResponse, "evaluation is not a JSON object")
	}
	return obj, nil
}

func parseScore(field string, raw json.RawMessage) (int, *Correction, error) {
	if raw == nil || isNull(raw) {
		return 0, nil, apperr.Newf(apperr.MalformedResponse, "evaluation score %q is missing", field)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, nil, apperr.Newf(apperr.MalformedResponse, "evaluation score %q is not valid JSON", field)
	}

	var (
		f      float64
		reason string
	)
	switch val := v.(type) {
	case json.Number:
		parsed, err := val.Float64()
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, nil, apperr.Newf(apperr.MalformedResponse, "evaluation score %q is not a number", field)
		}
		// Out-of-range literals come back as ±Inf or 0 with ErrRange; both clamp.
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if (err != nil && !errors.Is(err, strconv.ErrRange)) || math.IsNaN(parsed) {
			return 0, nil, apperr.Newf(apperr.MalformedResponse, "evaluation score %q is not numeric", field)
		}
		f = parsed
		reason = "numeric string"
	default:
		return 0, nil, apperr.Newf(apperr.MalformedResponse, "evaluation score %q is not numeric", field)
	}

	n := clampScore(f)
	if float64(n) != f {
		switch {
		case f < MinScore || f > MaxScore:
			reason = "out of range"
		case reason == "":
			reason = "not an integer"
		}
	}
	if reason == "" {
		return n, nil, nil
	}
	return n, &Correction{Field: field, Original: string(raw), Corrected: strconv.Itoa(n), Reason: reason}, nil
}

// clampScore rounds to the nearest integer and clamps to [MinScore, MaxScore].
func clampScore(f float64) int {
	f = math.Round(f)
	if f < MinScore {
		return MinScore
	}
	if f > MaxScore {
		return MaxScore
	}
	return int(f)
}

func parseStrings(field string, raw json.RawMessage) ([]string, []Correction, error) {
	if raw == nil || isNull(raw) {
		return []string{}, []Correction{{Field: field, Original: "missing", Corrected: "[]", Reason: "missing list"}}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, apperr.Newf(apperr.MalformedResponse, "evaluation field %q is not an array", field)
	}

	out := make([]string, 0, len(items))
	var fixes []Correction
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, nil, apperr.Newf(apperr.MalformedResponse, "evaluation field %q item %d is not a string", field, i)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			fixes = append(fixes, Correction{Field: field + "[" + strconv.Itoa(i) + "]", Original: string(item), Reason: "blank entry dropped"})
			continue
		}
		out = append(out, s)
	}
	return out, fixes, nil
}

type rawModelAnswer struct {
	Question        json.RawMessage `json:"question"`
	SuggestedAnswer json.RawMessage `json:"suggestedAnswer"`
}

func parseModelAnswers(raw json.RawMessage) ([]session.ModelAnswer, []Correction, error) {
	const field = "modelAnswers"
	if raw == nil || isNull(raw) {
		return []session.ModelAnswer{}, []Correction{{Field: field, Original: "missing", Corrected: "[]", Reason: "missing list"}}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, apperr.Newf(apperr.MalformedResponse, "evaluation field %q is not an array", field)
	}

	out := make([]session.ModelAnswer, 0, len(items))
	var fixes []Correction
	for i, item := range items {
		var obj rawModelAnswer
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(item, &obj) != nil {
			return nil, nil, apperr.Newf(apperr.MalformedResponse, "evaluation field %q item %d is not an object", field, i)
		}
		q, err := optionalString(obj.Question)
		if err != nil {
			return nil, nil, apperr.Newf(apperr.MalformedResponse, "evaluation field %q item %d question is not a string", field, i)
		}
		a, err := optionalString(obj.SuggestedAnswer)
		if err != nil {
			return nil, nil, apperr.Newf(apperr.MalformedResponse, "evaluation field %q item %d suggestedAnswer is not a string", field, i)
		}
		if q == "" && a == "" {
			fixes = append(fixes, Correction{Field: field + "[" + strconv.Itoa(i) + "]", Original: string(item), Reason: "empty entry dropped"})
			continue
		}
		out = append(out, session.ModelAnswer{Question: q, SuggestedAnswer: a})
	}
	return out, fixes, nil
}

func optionalString(raw json.RawMessage) (string, error) {
	if raw == nil || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
