package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Translate converts a JSONPath expression ($.a.b[0], $.items[*].id,
// $['key.with.dots']) into a gjson path. Filters and recursive descent are
// not supported.
func Translate(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", fmt.Errorf("empty jsonpath")
	}
	if strings.HasPrefix(p, "$") {
		p = p[1:]
	}
	if strings.Contains(p, "..") || strings.Contains(p, "?(") {
		return "", fmt.Errorf("unsupported jsonpath expression: %s", path)
	}

	var segments []string
	for len(p) > 0 {
		switch p[0] {
		case '.':
			p = p[1:]
			end := strings.IndexAny(p, ".[")
			if end < 0 {
				end = len(p)
			}
			if end == 0 {
				return "", fmt.Errorf("empty segment in jsonpath: %s", path)
			}
			segments = append(segments, escape(p[:end]))
			p = p[end:]
		case '[':
			end := strings.IndexByte(p, ']')
			if end < 0 {
				return "", fmt.Errorf("unterminated bracket in jsonpath: %s", path)
			}
			inner := strings.TrimSpace(p[1:end])
			p = p[end+1:]
			switch {
			case inner == "*":
				segments = append(segments, "#")
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				segments = append(segments, escape(inner[1:len(inner)-1]))
			default:
				if _, err := strconv.Atoi(inner); err != nil {
					return "", fmt.Errorf("unsupported index %q in jsonpath: %s", inner, path)
				}
				segments = append(segments, inner)
			}
		default:
			// bare leading key without "$."
			end := strings.IndexAny(p, ".[")
			if end < 0 {
				end = len(p)
			}
			segments = append(segments, escape(p[:end]))
			p = p[end:]
		}
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("jsonpath selects the whole document: %s", path)
	}
	return strings.Join(segments, "."), nil
}

func escape(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "#", `\#`, "|", `\|`, "@", `\@`)
	return r.Replace(key)
}

// Select returns the scalar string values selected by path in the JSON
// document. Arrays are flattened; objects are returned as raw JSON. An
// invalid or unmatched path yields no values.
func Select(doc []byte, path string) []string {
	gpath, err := Translate(path)
	if err != nil {
		return nil
	}
	res := gjson.GetBytes(doc, gpath)
	if !res.Exists() {
		return nil
	}
	var out []string
	collect(res, &out)
	return out
}

func collect(res gjson.Result, out *[]string) {
	switch {
	case res.IsArray():
		for _, r := range res.Array() {
			collect(r, out)
		}
	case res.Type == gjson.Null:
	case res.IsObject():
		*out = append(*out, res.Raw)
	default:
		*out = append(*out, res.String())
	}
}
