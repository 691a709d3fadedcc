package xmlconv

import (
	"encoding/xml"
	"strings"
)

// decodeCanonical walks an XML document into a generic map using the
// canonical attribute/text-preserving strategy: attribute keys lose
// their namespace prefix, element and attribute names are lowercased,
// snake_case is converted to camelCase, and empty values (empty
// strings, empty maps, empty slices) are pruned from the result.
func decodeCanonical(xmlText string) (map[string]any, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlText))
	var root *node
	var stack []*node

	for {
		tok, err := decoder.Token()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: canonicalKey(t.Name.Local), attrs: map[string]any{}, children: map[string]any{}}
			for _, attr := range t.Attr {
				key := canonicalKey(stripPrefix(attr.Name.Local))
				n.attrs[key] = attr.Value
			}
			if len(stack) == 0 {
				root = n
			}
			stack = append(stack, n)
		case xml.CharData:
			if len(stack) > 0 {
				text := strings.TrimSpace(string(t))
				if text != "" {
					stack[len(stack)-1].text += text
				}
			}
		case xml.EndElement:
			if len(stack) > 0 {
				n := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				// attach a child only once it is complete, so its value
				// includes its own children and text
				if len(stack) > 0 {
					stack[len(stack)-1].addChild(n)
				}
			}
		}
	}

	if root == nil {
		return map[string]any{}, nil
	}
	return map[string]any{root.name: root.value()}, nil
}

type node struct {
	name     string
	attrs    map[string]any
	children map[string]any
	text     string
}

func (n *node) addChild(child *node) {
	existing, ok := n.children[child.name]
	if !ok {
		n.children[child.name] = child.value()
		return
	}
	if list, ok := existing.([]any); ok {
		n.children[child.name] = append(list, child.value())
	} else {
		n.children[child.name] = []any{existing, child.value()}
	}
}

// value renders this node as its canonical JSON-shaped value: a map of
// attributes and children, with a bare string when the node has no
// attributes or children (pure text content), and with empties pruned.
func (n *node) value() any {
	if len(n.attrs) == 0 && len(n.children) == 0 {
		return n.text
	}
	out := map[string]any{}
	for k, v := range n.attrs {
		if !isEmpty(v) {
			out[k] = v
		}
	}
	for k, v := range n.children {
		if !isEmpty(v) {
			out[k] = v
		}
	}
	if n.text != "" {
		out["value"] = n.text
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func stripPrefix(name string) string {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// canonicalKey lowercases an XML element/attribute local name and
// converts snake_case to camelCase, matching the canonical JSON key
// convention used throughout the stored documents (e.g. studyTitle,
// centerName).
func canonicalKey(name string) string {
	lower := strings.ToLower(name)
	if !strings.Contains(lower, "_") {
		return lower
	}
	parts := strings.Split(lower, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
