package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Template store layout: a count byte and a confirm-times byte, followed by
// fixed-size records of (name[TemplateNameLen], EmbeddingSize float32 LE).
// The whole file is rewritten on every enrollment completion and every
// deletion; with a single-digit template count the simplicity is worth the
// extra I/O.
const (
	// EmbeddingSize is the fixed embedding vector length (MobileFaceNet
	// dimension).
	EmbeddingSize = 192
	// TemplateNameLen is the fixed on-medium size of the owner name field.
	TemplateNameLen = 32
)

// FaceTemplate is one stored (name, embedding) pair. Templates are keyed by
// the owner's display name; this mirrors the matcher's reporting key and is a
// documented limitation when display names collide.
type FaceTemplate struct {
	Name      string
	Embedding [EmbeddingSize]float32
}

// LoadTemplates reads the template store. A missing file is an empty store.
// The second return value is the persisted confirm-times setting.
func (g *Gateway) LoadTemplates() ([]FaceTemplate, int, error) {
	if !g.acquire("load_templates") {
		return []FaceTemplate{}, 0, g.contentionErr("load_templates")
	}
	defer g.release()

	var templates []FaceTemplate
	confirmTimes := 0
	err := g.withMedium("load_templates", func(root string) error {
		var readErr error
		templates, confirmTimes, readErr = readTemplateFile(filepath.Join(root, templateFile))
		return readErr
	})
	g.metrics.RecordOperation("load_templates", err)
	if err != nil {
		return []FaceTemplate{}, 0, err
	}
	return templates, confirmTimes, nil
}

// SaveTemplates rewrites the whole template store.
func (g *Gateway) SaveTemplates(templates []FaceTemplate, confirmTimes int) error {
	if len(templates) > math.MaxUint8 {
		return errValidation(fmt.Sprintf("template count %d exceeds store limit", len(templates)))
	}

	if !g.acquire("save_templates") {
		return g.contentionErr("save_templates")
	}
	defer g.release()

	err := g.withMedium("save_templates", func(root string) error {
		return writeTemplateFile(filepath.Join(root, templateFile), templates, confirmTimes)
	})
	g.metrics.RecordOperation("save_templates", err)
	return err
}

// CountTemplateOwners returns the number of distinct names with a stored
// template set, used to enforce the enrollment cap.
func (g *Gateway) CountTemplateOwners() (int, error) {
	templates, _, err := g.LoadTemplates()
	if err != nil {
		return 0, err
	}
	owners := make(map[string]struct{}, len(templates))
	for _, t := range templates {
		owners[t.Name] = struct{}{}
	}
	return len(owners), nil
}

// deleteTemplatesLocked removes every template owned by name and rewrites the
// store. Lock must be held; used by the identity-delete cascade.
func (g *Gateway) deleteTemplatesLocked(root, name string) error {
	path := filepath.Join(root, templateFile)
	templates, confirmTimes, err := readTemplateFile(path)
	if err != nil {
		return err
	}
	kept := templates[:0]
	for _, t := range templates {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(templates) {
		return nil
	}
	return writeTemplateFile(path, kept, confirmTimes)
}

func readTemplateFile(path string) ([]FaceTemplate, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []FaceTemplate{}, 0, nil
		}
		return nil, 0, err
	}
	if len(data) < 2 {
		return []FaceTemplate{}, 0, nil
	}

	count := int(data[0])
	confirmTimes := int(data[1])
	recordSize := TemplateNameLen + EmbeddingSize*4

	templates := make([]FaceTemplate, 0, count)
	offset := 2
	for i := 0; i < count; i++ {
		if offset+recordSize > len(data) {
			// Truncated store; keep the records that fit.
			break
		}
		var t FaceTemplate
		t.Name = string(bytes.TrimRight(data[offset:offset+TemplateNameLen], "\x00"))
		vec := data[offset+TemplateNameLen : offset+recordSize]
		for j := 0; j < EmbeddingSize; j++ {
			t.Embedding[j] = math.Float32frombits(binary.LittleEndian.Uint32(vec[j*4:]))
		}
		templates = append(templates, t)
		offset += recordSize
	}
	return templates, confirmTimes, nil
}

func writeTemplateFile(path string, templates []FaceTemplate, confirmTimes int) error {
	var buf bytes.Buffer
	buf.WriteByte(byte(len(templates)))
	buf.WriteByte(byte(confirmTimes))

	for _, t := range templates {
		name := make([]byte, TemplateNameLen)
		copy(name, t.Name)
		buf.Write(name)
		for _, v := range t.Embedding {
			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
			buf.Write(word[:])
		}
	}
	return writeFileAtomic(path, buf.Bytes())
}
