package validate

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// xsdElement is a structural element declaration compiled out of a
// registered XSD artifact: the attributes it may carry and the
// elements it may contain, each with its occurrence bounds. It does
// not model types, groups, or element order — only the shape needed to
// catch an unknown element, a missing required attribute, or a
// cardinality violation, per the structural-walk approach this package
// takes in place of a full XSD engine (see DESIGN.md).
type xsdElement struct {
	name          string
	requiredAttrs map[string]bool
	children      map[string]xsdChild
}

type xsdChild struct {
	def *xsdElement
	min int
	max int // -1 means unbounded
}

// xsdModel is the compiled form of one XSD document: its globally
// declared elements, keyed by local name.
type xsdModel struct {
	elements map[string]*xsdElement
}

// xsdNode is a generic, namespace-agnostic parse tree for the XSD's own
// XML syntax (xs:element, xs:complexType, xs:sequence, ...), built
// once so the element/attribute/cardinality compiler below can walk it
// without re-parsing tokens itself.
type xsdNode struct {
	name     string
	attrs    map[string]string
	children []*xsdNode
}

func parseXSDTree(raw string) (*xsdNode, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var root *xsdNode
	var stack []*xsdNode
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
			n := &xsdNode{name: t.Name.Local, attrs: map[string]string{}}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return root, nil
}

// parseXSDModel compiles raw XSD text into an xsdModel. A schema with
// no top-level xs:element declarations (including an entirely empty or
// placeholder schema) compiles to a model with zero elements, which
// Validate treats as "nothing to check structurally" rather than as a
// schema that rejects every element.
func parseXSDModel(raw string) (*xsdModel, error) {
	root, err := parseXSDTree(raw)
	if err != nil {
		return nil, err
	}
	m := &xsdModel{elements: map[string]*xsdElement{}}
	if root == nil {
		return m, nil
	}

	namedTypes := map[string]*xsdNode{}
	for _, child := range root.children {
		if child.name == "complexType" && child.attrs["name"] != "" {
			namedTypes[child.attrs["name"]] = child
		}
	}

	for _, child := range root.children {
		if child.name != "element" || child.attrs["name"] == "" {
			continue
		}
		m.elements[child.attrs["name"]] = buildXSDElement(child, namedTypes, map[string]bool{})
	}
	return m, nil
}

// buildXSDElement compiles one xs:element node (and, recursively, the
// elements nested in its complex type) into an xsdElement. inProgress
// guards against a named complexType referencing itself, directly or
// through a cycle, which would otherwise recurse forever.
func buildXSDElement(node *xsdNode, namedTypes map[string]*xsdNode, inProgress map[string]bool) *xsdElement {
	el := &xsdElement{
		name:          node.attrs["name"],
		requiredAttrs: map[string]bool{},
		children:      map[string]xsdChild{},
	}

	typeNode := node
	if typeName := node.attrs["type"]; typeName != "" {
		if named, ok := namedTypes[stripXSDPrefix(typeName)]; ok && !inProgress[typeName] {
			inProgress[typeName] = true
			typeNode = named
			defer delete(inProgress, typeName)
		} else {
			// a built-in or unresolvable type (xs:string, xs:integer, ...):
			// no nested structure to compile.
			return el
		}
	}

	walkXSDContent(typeNode, el, namedTypes, inProgress)
	return el
}

// walkXSDContent descends through complexType/sequence/choice/all
// wrapper nodes, collecting the attribute and element declarations they
// carry directly, regardless of nesting depth within those wrappers.
func walkXSDContent(node *xsdNode, el *xsdElement, namedTypes map[string]*xsdNode, inProgress map[string]bool) {
	for _, child := range node.children {
		switch child.name {
		case "complexType", "sequence", "choice", "all", "group":
			walkXSDContent(child, el, namedTypes, inProgress)
		case "element":
			childName := child.attrs["name"]
			if childName == "" {
				continue
			}
			el.children[childName] = xsdChild{
				def: buildXSDElement(child, namedTypes, inProgress),
				min: parseOccurs(child.attrs["minOccurs"], 1),
				max: parseOccurs(child.attrs["maxOccurs"], 1),
			}
		case "attribute":
			attrName := child.attrs["name"]
			if attrName == "" {
				continue
			}
			el.requiredAttrs[attrName] = child.attrs["use"] == "required"
		}
	}
}

func parseOccurs(raw string, def int) int {
	if raw == "" {
		return def
	}
	if raw == "unbounded" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func stripXSDPrefix(name string) string {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
