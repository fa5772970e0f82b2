package object

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/json"
)

// Dump converts a document into a human-readable form.
func Dump(doc Document) string {
	if b, err := json.Marshal(doc); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%#v", doc)
}

// DumpList converts a list of documents into a human-readable form.
func DumpList(docs []Document) string {
	if b, err := json.Marshal(docs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%#v", docs)
}
