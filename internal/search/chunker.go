package search

import "strings"

const (
	chunkWords   = 200
	overlapWords = 40
)

// Chunk is one indexable slice of a transcript.
type Chunk struct {
	Index int
	Text  string
}

// chunkTranscript splits a transcript into overlapping word windows. The
// overlap keeps a sentence that straddles a boundary findable from either
// side. Short transcripts come back as a single chunk.
func chunkTranscript(transcript string) []Chunk {
	words := strings.Fields(transcript)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= chunkWords {
		return []Chunk{{Index: 0, Text: strings.Join(words, " ")}}
	}

	step := chunkWords - overlapWords
	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(words[start:end], " "),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
