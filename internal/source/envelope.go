package source

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Response is a decoded source API body.
//
// For XML envelopes Tag is the root element's local name. A base64Binary
// root is decoded into Body. A string root carries an escaped XML fragment,
// parsed into Tree. Any other root leaves its text in Body. Non-XML bodies
// are returned unchanged in Body with an empty Tag.
type Response struct {
	Tag  string
	Body []byte
	Tree *Node
}

// Node is an element of a parsed fragment.
type Node struct {
	Name     string
	Text     string
	Children []*Node
}

// Find returns the descendants reached by following path, one child name
// per step. Every matching child is followed, so repeated elements fan out.
func (n *Node) Find(path ...string) []*Node {
	current := []*Node{n}
	for _, name := range path {
		var next []*Node
		for _, c := range current {
			for _, child := range c.Children {
				if child.Name == name {
					next = append(next, child)
				}
			}
		}
		current = next
	}
	return current
}

// ChildText returns the trimmed text of the first child named name.
func (n *Node) ChildText(name string) string {
	for _, c := range n.Children {
		if c.Name == name {
			return strings.TrimSpace(c.Text)
		}
	}
	return ""
}

// decodeEnvelope parses an XML response body.
func decodeEnvelope(body []byte) (*Response, error) {
	tag, text, err := rootText(body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &APIError{
			Code:    ErrCodeAuthOrParameter,
			Message: "no response content, which can be caused by incorrect credentials or parameters (e.g. the file name does not exist)",
		}
	}
	for _, phrase := range knownRefusals {
		if strings.Contains(text, phrase) {
			return nil, &APIError{Code: ErrCodeAuthOrParameter, Message: phrase}
		}
	}

	res := &Response{Tag: tag}
	switch tag {
	case "base64Binary":
		clean := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, text)
		res.Body, err = base64.StdEncoding.DecodeString(clean)
		if err != nil {
			return nil, &APIError{Code: ErrCodeMalformed, Message: "decode base64 payload", Err: err}
		}
	case "string":
		res.Tree, err = parseFragment(text)
		if err != nil {
			return nil, &APIError{Code: ErrCodeMalformed, Message: "parse embedded document", Err: err}
		}
	default:
		res.Body = []byte(text)
	}
	return res, nil
}

// rootText returns the root element's local name and the character data
// that precedes its first child element.
func rootText(body []byte) (string, string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		tag   string
		text  strings.Builder
		depth int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", &APIError{Code: ErrCodeMalformed, Message: "parse envelope", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				tag = t.Name.Local
				continue
			}
			// Text after the first child is not part of the root text.
			return tag, text.String(), nil
		case xml.EndElement:
			depth--
			if depth == 0 {
				return tag, text.String(), nil
			}
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		}
	}
	if tag == "" {
		return "", "", &APIError{Code: ErrCodeMalformed, Message: "envelope has no root element"}
	}
	return tag, text.String(), nil
}

// parseFragment parses text as the children of a synthetic <root> element.
// Literal ampersands are escaped first because the service does not escape
// them inside the embedded document.
func parseFragment(text string) (*Node, error) {
	doc := "<root>" + strings.ReplaceAll(text, "&", "&amp;") + "</root>"
	dec := xml.NewDecoder(strings.NewReader(doc))

	var stack []*Node
	var root *Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("empty document")
	}
	return root, nil
}
