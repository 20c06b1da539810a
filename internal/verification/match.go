package verification

// Match is a resolved identity for a single detected face.
type Match struct {
	StudentID string
	Score     float64
}

// ResolveFace compares a detected face embedding against every cached
// enrollment and returns the single best-scoring student at or above the
// threshold. Ties are broken deterministically by first-seen enrollment
// order: a later student must strictly beat the current best to replace it.
// Returns nil when no student reaches the threshold.
func ResolveFace(cache *EmbeddingCache, embedding []float32, threshold float64) *Match {
	var best *Match
	for _, candidate := range cache.Candidates(embedding) {
		score := CompareEmbeddings(embedding, candidate.Embedding)
		if score < threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{StudentID: candidate.StudentID, Score: score}
		}
	}
	return best
}

// ResolveFrame resolves every face in a frame, dropping unmatched faces and
// collapsing multiple faces that resolve to the same student into the
// highest-scoring one.
func ResolveFrame(cache *EmbeddingCache, embeddings [][]float32, threshold float64) []Match {
	byStudent := make(map[string]int)
	var matches []Match
	for _, emb := range embeddings {
		m := ResolveFace(cache, emb, threshold)
		if m == nil {
			continue
		}
		if i, seen := byStudent[m.StudentID]; seen {
			if m.Score > matches[i].Score {
				matches[i] = *m
			}
			continue
		}
		byStudent[m.StudentID] = len(matches)
		matches = append(matches, *m)
	}
	return matches
}
