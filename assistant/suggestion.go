package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ============================================================================
// SUGGESTION: structured intake of an assistant reply
// ============================================================================
// The assistant answers in prose and may end its reply with one fenced
// block of JSON describing what the dashboard should do:
//
//	```action
//	{"navigate": "claims", "filters": {"claim_status": "Approved"}}
//	```
//
// ParseSuggestion separates the prose from that block. Filters are applied
// through the filter model; every other key is passed through untouched.
// ============================================================================

// ErrMalformedAction is returned when a reply carries an action block that
// is not a JSON object.
var ErrMalformedAction = errors.New("malformed action block")

// Well-known action keys.
const (
	ActionFilters  = "filters"
	ActionNavigate = "navigate"
	ActionTemplate = "create_template"
)

// Suggestion is the parsed form of one assistant reply.
type Suggestion struct {
	Text       string                     `json:"text"`
	Filters    map[string]string          `json:"filters,omitempty"`
	Navigate   string                     `json:"navigate,omitempty"`
	Template   string                     `json:"template,omitempty"`
	Directives map[string]json.RawMessage `json:"directives,omitempty"`
}

// HasFilters reports whether the suggestion asks for a filter change.
func (s Suggestion) HasFilters() bool { return len(s.Filters) > 0 }

// HasAction reports whether any action was parsed at all.
func (s Suggestion) HasAction() bool {
	return s.HasFilters() || s.Navigate != "" || s.Template != "" || len(s.Directives) > 0
}

var actionBlock = regexp.MustCompile("(?s)```action\\s*\\n?(.*?)\\n?```")

// ParseSuggestion extracts the action block from an assistant reply. When
// several blocks are present the last one wins and all of them are removed
// from Text. A reply that is nothing but a (possibly ```json fenced) JSON
// object is read as a bare action. Text is populated even when an error is
// returned, so callers can still show the prose.
func ParseSuggestion(reply string) (Suggestion, error) {
	matches := actionBlock.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		if body, ok := bareJSON(reply); ok {
			if s, err := decodeAction(body); err == nil {
				return s, nil
			}
		}
		return Suggestion{Text: strings.TrimSpace(reply)}, nil
	}

	text := strings.TrimSpace(actionBlock.ReplaceAllString(reply, ""))
	s, err := decodeAction(strings.TrimSpace(matches[len(matches)-1][1]))
	if err != nil {
		return Suggestion{Text: strings.TrimSpace(reply)}, err
	}
	s.Text = text
	return s, nil
}

// bareJSON strips markdown fences and reports whether what is left looks
// like a JSON object.
func bareJSON(reply string) (string, bool) {
	body := strings.TrimSpace(reply)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	return body, strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}")
}

func decodeAction(body string) (Suggestion, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Suggestion{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}

	var s Suggestion
	for key, msg := range raw {
		switch key {
		case ActionFilters:
			filters, err := decodeFilters(msg)
			if err != nil {
				return Suggestion{}, err
			}
			s.Filters = filters
		case ActionNavigate:
			if err := json.Unmarshal(msg, &s.Navigate); err != nil {
				return Suggestion{}, fmt.Errorf("%w: navigate must be a string", ErrMalformedAction)
			}
		case ActionTemplate:
			if err := json.Unmarshal(msg, &s.Template); err != nil {
				return Suggestion{}, fmt.Errorf("%w: create_template must be a string", ErrMalformedAction)
			}
		default:
			if s.Directives == nil {
				s.Directives = make(map[string]json.RawMessage)
			}
			s.Directives[key] = msg
		}
	}
	return s, nil
}

// decodeFilters accepts string, number and boolean values. Null clears a key
// (it becomes "All"); nested values are rejected.
func decodeFilters(msg json.RawMessage) (map[string]string, error) {
	var values map[string]any
	if err := json.Unmarshal(msg, &values); err != nil {
		return nil, fmt.Errorf("%w: filters must be an object", ErrMalformedAction)
	}
	filters := make(map[string]string, len(values))
	for key, v := range values {
		switch v := v.(type) {
		case nil:
			filters[key] = "All"
		case string:
			filters[key] = strings.TrimSpace(v)
		case float64:
			filters[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			filters[key] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("%w: filter %q has a nested value", ErrMalformedAction, key)
		}
	}
	return filters, nil
}

var listMarker = regexp.MustCompile(`^[\d.\-*•]+\s*`)

// CleanQuestions splits a follow-up-questions reply into at most limit
// questions, dropping blank lines and any numbering or bullets.
func CleanQuestions(reply string, limit int) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		if limit > 0 && len(out) == limit {
			break
		}
		q := strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}
