package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
)

// Persisted file names inside the data directory.
const (
	IndexFileName      = "index.json"
	EmbeddingsFileName = "embeddings.bin"
)

const (
	indexFormatVersion      = 1
	embeddingsFormatVersion = 1
	embeddingsMagic         = "SREM"

	// magic + version + dims + count
	embeddingsHeaderSize = 4 + 2 + 4 + 4
	crcSize              = 4
)

type indexFile struct {
	Version               int            `json:"version"`
	DocumentCount         int            `json:"document_count"`
	AverageDocumentLength float64        `json:"average_document_length"`
	DocumentFrequency     map[string]int `json:"document_frequency"`
	Postings              []postingEntry `json:"postings"`
	SavedAt               time.Time      `json:"saved_at"`
}

type postingEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Tokens    []string  `json:"token_sequence"`
	Length    int       `json:"length"`
}

// SaveIndex writes the lexical index as JSON. The write goes to a temporary
// file that is renamed into place, so readers never see a partial file.
func SaveIndex(path string, idx *LexicalIndex) error {
	idx.mu.RLock()
	file := indexFile{
		Version:               indexFormatVersion,
		DocumentCount:         len(idx.postings),
		AverageDocumentLength: idx.avgLength,
		DocumentFrequency:     make(map[string]int, len(idx.docFreq)),
		Postings:              make([]postingEntry, 0, len(idx.postings)),
		SavedAt:               time.Now().UTC(),
	}
	for term, df := range idx.docFreq {
		file.DocumentFrequency[term] = df
	}
	for id, p := range idx.postings {
		file.Postings = append(file.Postings, postingEntry{
			ID:        id,
			Timestamp: p.Timestamp,
			Tokens:    p.Tokens,
			Length:    p.Length,
		})
	}
	idx.mu.RUnlock()
	sort.Slice(file.Postings, func(i, j int) bool { return file.Postings[i].ID < file.Postings[j].ID })

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	return writeAtomic(path, data)
}

// LoadIndex reads an index written by SaveIndex. The stored counters are
// checked against the postings; any disagreement is reported as a corrupt
// index so the caller can rebuild from session files.
//
// A single posting whose length disagrees with its token count is kept and
// left to the scorer, which skips it per query.
func LoadIndex(path string) (*LexicalIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, recallerrors.New(recallerrors.ErrCodeIndexNotFound, "no persisted index at "+path, err)
		}
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, recallerrors.CorruptIndexError(path, err)
	}
	if file.Version != indexFormatVersion {
		return nil, recallerrors.CorruptIndexError(path,
			fmt.Errorf("unsupported index version %d", file.Version))
	}
	if file.DocumentCount != len(file.Postings) {
		return nil, recallerrors.CorruptIndexError(path,
			fmt.Errorf("document_count %d but %d postings", file.DocumentCount, len(file.Postings)))
	}

	idx := NewLexicalIndex()
	for _, e := range file.Postings {
		if e.ID == "" {
			return nil, recallerrors.CorruptIndexError(path, errors.New("posting with empty id"))
		}
		if _, dup := idx.postings[e.ID]; dup {
			return nil, recallerrors.CorruptIndexError(path, fmt.Errorf("duplicate posting %q", e.ID))
		}
		if e.Length < 0 {
			return nil, recallerrors.CorruptIndexError(path, fmt.Errorf("negative length for %q", e.ID))
		}
		tokens := e.Tokens
		if tokens == nil {
			tokens = []string{}
		}
		idx.postings[e.ID] = &Posting{Tokens: tokens, Length: e.Length, Timestamp: e.Timestamp}
		for term := range distinct(tokens) {
			idx.docFreq[term]++
		}
		idx.totalLength += int64(e.Length)
	}
	idx.updateAverageLocked()

	if len(idx.docFreq) != len(file.DocumentFrequency) {
		return nil, recallerrors.CorruptIndexError(path,
			fmt.Errorf("document_frequency has %d terms, postings have %d", len(file.DocumentFrequency), len(idx.docFreq)))
	}
	for term, df := range idx.docFreq {
		if file.DocumentFrequency[term] != df {
			return nil, recallerrors.CorruptIndexError(path,
				fmt.Errorf("document_frequency[%q] = %d, postings give %d", term, file.DocumentFrequency[term], df))
		}
	}
	if !closeEnough(file.AverageDocumentLength, idx.avgLength) {
		return nil, recallerrors.CorruptIndexError(path,
			fmt.Errorf("average_document_length %g, postings give %g", file.AverageDocumentLength, idx.avgLength))
	}

	return idx, nil
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

// SaveEmbeddings writes every stored vector in the binary layout:
//
//	"SREM" | uint16 version | uint32 dims | uint32 count
//	count*dims float32 (row per id)
//	count * (uint16 len | id bytes)
//	uint32 CRC32 of everything above
//
// All integers and floats are little-endian. Rows follow sorted id order.
func SaveEmbeddings(path string, s *EmbeddingStore) error {
	dims, ids, vecs := s.snapshot()

	var buf bytes.Buffer
	buf.Grow(embeddingsHeaderSize + len(ids)*dims*4 + len(ids)*24 + crcSize)
	buf.WriteString(embeddingsMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(embeddingsFormatVersion))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dims))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(ids)))

	var word [4]byte
	for _, v := range vecs {
		for _, f := range v {
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(f))
			buf.Write(word[:])
		}
	}
	for _, id := range ids {
		if len(id) > math.MaxUint16 {
			return fmt.Errorf("embedding id too long: %d bytes", len(id))
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(id)))
		buf.WriteString(id)
	}
	_ = binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))

	return writeAtomic(path, buf.Bytes())
}

// LoadEmbeddings reads a file written by SaveEmbeddings. Vectors are restored
// exactly as stored; they were normalized before they were saved.
func LoadEmbeddings(path string) (*EmbeddingStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, recallerrors.New(recallerrors.ErrCodeIndexNotFound, "no persisted embeddings at "+path, err)
		}
		return nil, fmt.Errorf("failed to read embeddings: %w", err)
	}

	dims, ids, vecs, err := decodeEmbeddings(data)
	if err != nil {
		return nil, recallerrors.CorruptIndexError(path, err)
	}

	s := NewEmbeddingStore(dims)
	s.replace(dims, ids, vecs)
	return s, nil
}

func decodeEmbeddings(data []byte) (int, []string, [][]float32, error) {
	if len(data) < embeddingsHeaderSize+crcSize {
		return 0, nil, nil, fmt.Errorf("file too short: %d bytes", len(data))
	}
	body, trailer := data[:len(data)-crcSize], data[len(data)-crcSize:]
	if got, want := crc32.ChecksumIEEE(body), binary.LittleEndian.Uint32(trailer); got != want {
		return 0, nil, nil, fmt.Errorf("checksum mismatch: %08x != %08x", got, want)
	}
	if string(body[:4]) != embeddingsMagic {
		return 0, nil, nil, fmt.Errorf("bad magic %q", body[:4])
	}
	if v := binary.LittleEndian.Uint16(body[4:6]); v != embeddingsFormatVersion {
		return 0, nil, nil, fmt.Errorf("unsupported embeddings version %d", v)
	}
	dims := int(binary.LittleEndian.Uint32(body[6:10]))
	count := int(binary.LittleEndian.Uint32(body[10:14]))
	if count > 0 && dims == 0 {
		return 0, nil, nil, errors.New("vectors with zero dimensions")
	}

	off := embeddingsHeaderSize
	matrix := count * dims * 4
	if matrix < 0 || off+matrix > len(body) {
		return 0, nil, nil, fmt.Errorf("matrix of %d x %d exceeds file size", count, dims)
	}
	vecs := make([][]float32, count)
	for i := range vecs {
		v := make([]float32, dims)
		for j := range v {
			f := math.Float32frombits(binary.LittleEndian.Uint32(body[off:]))
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return 0, nil, nil, fmt.Errorf("non-finite value in row %d", i)
			}
			v[j] = f
			off += 4
		}
		vecs[i] = v
	}

	ids := make([]string, count)
	seen := make(map[string]struct{}, count)
	for i := range ids {
		if off+2 > len(body) {
			return 0, nil, nil, fmt.Errorf("truncated id list at %d", i)
		}
		n := int(binary.LittleEndian.Uint16(body[off:]))
		off += 2
		if n == 0 || off+n > len(body) {
			return 0, nil, nil, fmt.Errorf("bad id length at %d", i)
		}
		id := string(body[off : off+n])
		off += n
		if _, dup := seen[id]; dup {
			return 0, nil, nil, fmt.Errorf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		ids[i] = id
	}
	if off != len(body) {
		return 0, nil, nil, fmt.Errorf("%d trailing bytes", len(body)-off)
	}

	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ids[order[a]] < ids[order[b]] })
	sortedIDs := make([]string, count)
	sortedVecs := make([][]float32, count)
	for i, j := range order {
		sortedIDs[i] = ids[j]
		sortedVecs[i] = vecs[j]
	}
	return dims, sortedIDs, sortedVecs, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
