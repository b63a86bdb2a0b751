package memory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// IndexState tracks the lifecycle of the vector index.
type IndexState int

const (
	IndexEmpty IndexState = iota
	IndexBuilding
	IndexReady
)

func (s IndexState) String() string {
	switch s {
	case IndexBuilding:
		return "building"
	case IndexReady:
		return "ready"
	default:
		return "empty"
	}
}

// indexMagic identifies the vector blob format on disk.
var indexMagic = [4]byte{'E', 'V', 'I', 'X'}

const indexVersion uint32 = 1

// VectorIndex is an in-memory flat index over L2-normalized embeddings.
// Cosine similarity reduces to an inner product over stored vectors.
// All operations hold a single mutex; the index is small enough that
// linear scans stay cheap well past the cache ceiling.
type VectorIndex struct {
	mu        sync.Mutex
	dimension int
	vectors   [][]float32
	ids       []int64
	state     IndexState
	logger    zerolog.Logger
}

// NewVectorIndex creates an empty index for vectors of the given dimension.
func NewVectorIndex(dimension int, logger zerolog.Logger) *VectorIndex {
	return &VectorIndex{
		dimension: dimension,
		state:     IndexEmpty,
		logger:    logger,
	}
}

// normalize returns a unit-length copy of vec, or nil for a zero vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// Build replaces the index contents with the given records. Records with
// missing or mismatched embeddings are skipped. Zero-norm vectors are
// skipped as well since they cannot participate in cosine similarity.
// Empty input is a no-op and leaves the current contents in place.
func (idx *VectorIndex) Build(records []Record) {
	if len(records) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.state = IndexBuilding

	vectors := make([][]float32, 0, len(records))
	ids := make([]int64, 0, len(records))
	skipped := 0
	for _, rec := range records {
		if len(rec.Embedding) != idx.dimension {
			skipped++
			continue
		}
		unit := normalize(rec.Embedding)
		if unit == nil {
			skipped++
			continue
		}
		vectors = append(vectors, unit)
		ids = append(ids, rec.ID)
	}

	idx.vectors = vectors
	idx.ids = ids
	idx.state = IndexReady

	if skipped > 0 {
		idx.logger.Debug().Int("skipped", skipped).Int("indexed", len(ids)).Msg("Index build skipped records without usable embeddings")
	}
}

// Add appends a single vector to the index.
func (idx *VectorIndex) Add(id int64, vec []float32) error {
	if len(vec) != idx.dimension {
		return fmt.Errorf("vector has dimension %d, index expects %d", len(vec), idx.dimension)
	}
	unit := normalize(vec)
	if unit == nil {
		return fmt.Errorf("cannot index zero-norm vector for id %d", id)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors = append(idx.vectors, unit)
	idx.ids = append(idx.ids, id)
	if idx.state == IndexEmpty {
		idx.state = IndexReady
	}
	return nil
}

// Match is a single nearest-neighbor hit.
type Match struct {
	ID    int64
	Score float64
}

// Search returns up to limit ids ranked by cosine similarity to query,
// dropping hits below minSimilarity. A zero-norm query matches nothing.
func (idx *VectorIndex) Search(query []float32, limit int, minSimilarity float64) []Match {
	unit := normalize(query)
	if unit == nil {
		return nil
	}

	idx.mu.Lock()
	if idx.state != IndexReady {
		idx.mu.Unlock()
		return nil
	}

	matches := make([]Match, 0, len(idx.vectors))
	for i, vec := range idx.vectors {
		var dot float64
		for j, v := range vec {
			dot += float64(v) * float64(unit[j])
		}
		if dot >= minSimilarity {
			matches = append(matches, Match{ID: idx.ids[i], Score: dot})
		}
	}
	idx.mu.Unlock()

	sort.Slice(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Size returns the number of indexed vectors.
func (idx *VectorIndex) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.ids)
}

// State returns the current lifecycle state.
func (idx *VectorIndex) State() IndexState {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.state
}

// Save writes the index to basePath.vec and basePath.ids.json atomically:
// both files go through temp-and-rename, and a failure on either removes
// any partial output. Returns true only when both files landed.
func (idx *VectorIndex) Save(basePath string) bool {
	idx.mu.Lock()
	count := len(idx.ids)
	blob := make([]byte, 16+count*idx.dimension*4)
	copy(blob[0:4], indexMagic[:])
	binary.LittleEndian.PutUint32(blob[4:8], indexVersion)
	binary.LittleEndian.PutUint32(blob[8:12], uint32(idx.dimension))
	binary.LittleEndian.PutUint32(blob[12:16], uint32(count))
	off := 16
	for _, vec := range idx.vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(blob[off:off+4], math.Float32bits(v))
			off += 4
		}
	}
	ids := make([]int64, count)
	copy(ids, idx.ids)
	idx.mu.Unlock()

	idData, err := json.Marshal(ids)
	if err != nil {
		idx.logger.Error().Err(err).Msg("Failed to encode index id list")
		return false
	}

	vecPath := basePath + ".vec"
	idPath := basePath + ".ids.json"
	if err := os.MkdirAll(filepath.Dir(basePath), 0o755); err != nil {
		idx.logger.Error().Err(err).Str("path", basePath).Msg("Failed to create index directory")
		return false
	}

	// Stage both temp files before renaming either, so a failure here
	// only ever removes temp artifacts and a previously-good pair stays
	// intact on disk.
	vecTmp := vecPath + ".tmp"
	idTmp := idPath + ".tmp"
	if err := os.WriteFile(vecTmp, blob, 0o644); err != nil {
		idx.logger.Error().Err(err).Str("path", vecTmp).Msg("Failed to write vector blob")
		return false
	}
	if err := os.WriteFile(idTmp, idData, 0o644); err != nil {
		idx.logger.Error().Err(err).Str("path", idTmp).Msg("Failed to write id list")
		os.Remove(vecTmp)
		return false
	}
	if err := os.Rename(vecTmp, vecPath); err != nil {
		idx.logger.Error().Err(err).Str("path", vecPath).Msg("Failed to replace vector blob")
		os.Remove(vecTmp)
		os.Remove(idTmp)
		return false
	}
	if err := os.Rename(idTmp, idPath); err != nil {
		idx.logger.Error().Err(err).Str("path", idPath).Msg("Failed to replace id list")
		os.Remove(idTmp)
		return false
	}

	idx.logger.Debug().Int("vectors", count).Str("path", basePath).Msg("Index saved")
	return true
}

// Load restores the index from basePath.vec and basePath.ids.json.
// Returns false when the files are missing, corrupt, or disagree with
// each other; the in-memory index is left untouched in that case.
func (idx *VectorIndex) Load(basePath string) bool {
	blob, err := os.ReadFile(basePath + ".vec")
	if err != nil {
		return false
	}
	idData, err := os.ReadFile(basePath + ".ids.json")
	if err != nil {
		return false
	}

	if len(blob) < 16 || [4]byte(blob[0:4]) != indexMagic {
		idx.logger.Warn().Str("path", basePath).Msg("Index blob has bad header, ignoring")
		return false
	}
	if binary.LittleEndian.Uint32(blob[4:8]) != indexVersion {
		idx.logger.Warn().Str("path", basePath).Msg("Index blob has unsupported version, ignoring")
		return false
	}
	dimension := int(binary.LittleEndian.Uint32(blob[8:12]))
	count := int(binary.LittleEndian.Uint32(blob[12:16]))
	if dimension != idx.dimension {
		idx.logger.Warn().Int("file_dim", dimension).Int("index_dim", idx.dimension).Msg("Index blob dimension mismatch, ignoring")
		return false
	}
	if len(blob) != 16+count*dimension*4 {
		idx.logger.Warn().Str("path", basePath).Msg("Index blob is truncated, ignoring")
		return false
	}

	var ids []int64
	if err := json.Unmarshal(idData, &ids); err != nil || len(ids) != count {
		idx.logger.Warn().Str("path", basePath).Msg("Index id list is corrupt, ignoring")
		return false
	}

	vectors := make([][]float32, count)
	off := 16
	for i := 0; i < count; i++ {
		vec := make([]float32, dimension)
		for j := 0; j < dimension; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(blob[off : off+4]))
			off += 4
		}
		vectors[i] = vec
	}

	idx.mu.Lock()
	idx.vectors = vectors
	idx.ids = ids
	idx.state = IndexReady
	idx.mu.Unlock()

	idx.logger.Debug().Int("vectors", count).Str("path", basePath).Msg("Index loaded")
	return true
}
