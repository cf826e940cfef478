package retrieval

import "strings"

const contextSeparator = "\n\n---\n\n"

// BuildContext joins chunks as "[doc_id]\ncontent" blocks in the order given.
func BuildContext(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		blocks = append(blocks, "["+chunk.DocID+"]\n"+chunk.Content)
	}
	return strings.Join(blocks, contextSeparator)
}
