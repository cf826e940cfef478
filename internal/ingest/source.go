package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/salesqa/salesqa/internal/storage"
)

// Document is one source text for retrieval. ID becomes rag_chunks.doc_id.
type Document struct {
	ID     string
	Source string
	Text   string
}

type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

var documentExtensions = map[string]bool{".md": true, ".txt": true}

// FSSource reads every .md and .txt file at the root of FS.
type FSSource struct {
	FS   fs.FS
	Name string
}

func (s FSSource) Documents(ctx context.Context) ([]Document, error) {
	entries, err := fs.ReadDir(s.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("read document dir: %w", err)
	}
	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !documentExtensions[strings.ToLower(path.Ext(entry.Name()))] {
			continue
		}
		docID, err := storage.DocIDFromKey(entry.Name())
		if err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(s.FS, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read document %q: %w", entry.Name(), err)
		}
		docs = append(docs, Document{ID: docID, Source: path.Join(s.Name, entry.Name()), Text: string(data)})
	}
	return docs, nil
}

// ObjectSource reads documents stored under Prefix in an object store.
type ObjectSource struct {
	Store  storage.ObjectStore
	Prefix string
}

func (s ObjectSource) Documents(ctx context.Context) ([]Document, error) {
	objects, err := s.Store.List(ctx, s.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	docs := make([]Document, 0, len(objects))
	for _, object := range objects {
		if !documentExtensions[strings.ToLower(path.Ext(object.Key))] {
			continue
		}
		docID, err := storage.DocIDFromKey(object.Key)
		if err != nil {
			return nil, err
		}
		text, err := s.read(ctx, object.Key)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: docID, Source: object.Key, Text: text})
	}
	return docs, nil
}

func (s ObjectSource) read(ctx context.Context, key string) (string, error) {
	reader, err := s.Store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get document %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read document %q: %w", key, err)
	}
	return string(data), nil
}
