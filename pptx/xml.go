package pptx

import (
	"fmt"

	"github.com/beevik/etree"
)

// parsePart reads one package entry. etree keeps namespace prefixes as
// written, which PowerPoint requires on the way back out.
func parsePart(data []byte) (*etree.Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	if tree.Root() == nil {
		return nil, fmt.Errorf("parse xml: no document element")
	}
	return tree, nil
}

// newElement builds a detached element. attrs are key/value pairs; keys may
// carry a prefix ("r:embed").
func newElement(tag string, attrs ...string) *etree.Element {
	e := etree.NewElement(tag)
	for i := 0; i+1 < len(attrs); i += 2 {
		e.CreateAttr(attrs[i], attrs[i+1])
	}
	return e
}

func attrValue(e *etree.Element, key string) (string, bool) {
	if e == nil {
		return "", false
	}
	a := e.SelectAttr(key)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

func find(e *etree.Element, path string) *etree.Element {
	if e == nil {
		return nil
	}
	return e.FindElement(path)
}

func textOf(e *etree.Element) string {
	if e == nil {
		return ""
	}
	return e.Text()
}
