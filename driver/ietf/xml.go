package ietf

import (
	"encoding/xml"
	"io"
	"strings"
)

// IndentXML reformats an XML fragment with one element per line, indented by depth, so that
// configurations can be compared line by line. Leaf elements keep their text on the same line.
func IndentXML(s string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	var b, text strings.Builder
	depth := 0
	// set while the innermost open element has no child elements
	leaf := false
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if leaf {
				b.WriteString("\n")
			}
			b.WriteString(strings.Repeat("  ", depth) + "<" + qname(t.Name))
			for _, a := range t.Attr {
				b.WriteString(" " + qname(a.Name) + `="`)
				_ = xml.EscapeText(&b, []byte(a.Value))
				b.WriteString(`"`)
			}
			b.WriteString(">")
			depth++
			leaf = true
			text.Reset()
		case xml.CharData:
			text.WriteString(strings.TrimSpace(string(t)))
		case xml.EndElement:
			depth--
			if leaf {
				_ = xml.EscapeText(&b, []byte(text.String()))
			} else {
				b.WriteString(strings.Repeat("  ", depth))
			}
			b.WriteString("</" + qname(t.Name) + ">\n")
			leaf = false
			text.Reset()
		}
	}
	return b.String(), nil
}

func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
