package hook

import (
	"context"
	"fmt"
	"strings"

	"github.com/voocel/toolrt/internal/toolapi"
)

// Summarizer chunks long tool output and asks a collaborating tool
// (typically an LLM-backed summarizer) to condense each chunk, then asks it
// to merge the chunk summaries into one. This is a direct translation of
// the source's output_summarizer.py compose script: sentence-boundary
// chunking, per-chunk summarization, then a merge pass.
type Summarizer struct {
	// ChunkSize is the maximum chunk length in characters, matching the
	// source's default of 32000.
	ChunkSize int
	// SummarizerTool is the name of the collaborating tool invoked for both
	// the per-chunk and merge passes.
	SummarizerTool string
	// Call invokes another registered tool by name, the Go equivalent of
	// the source's call_tool callback.
	Call func(ctx context.Context, toolName string, args map[string]any) (*toolapi.Result, error)
}

// NewSummarizePostHook builds a PostFunc that summarizes result.Data[field]
// in place when it's at least Summarizer.ChunkSize characters long. Any
// failure anywhere in the chain is swallowed by the caller's fail-open
// RunPost, so this function itself can return errors freely.
func (s *Summarizer) NewSummarizePostHook(field string) PostFunc {
	return func(ctx context.Context, ec *toolapi.ExecutionContext, result *toolapi.Result, callErr error) (*toolapi.Result, error) {
		if callErr != nil || result == nil || result.Data == nil {
			return result, callErr
		}
		text, _ := result.Data[field].(string)
		if text == "" {
			return result, callErr
		}

		summary, chunksProcessed, err := s.summarize(ctx, text, ec.ToolName)
		if err != nil {
			return result, fmt.Errorf("summarize: %w", err)
		}
		if chunksProcessed == 0 {
			return result, callErr
		}

		next := *result
		next.Data = make(map[string]any, len(result.Data)+2)
		for k, v := range result.Data {
			next.Data[k] = v
		}
		next.Data[field] = summary
		next.Data["summary_original_length"] = len(text)
		next.Data["summary_chunks_processed"] = chunksProcessed
		return &next, nil
	}
}

func (s *Summarizer) summarize(ctx context.Context, text, toolName string) (string, int, error) {
	chunkSize := s.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 32000
	}
	if len(text) < chunkSize {
		return text, 0, nil
	}

	chunks := chunkText(text, chunkSize)
	summaries := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		res, err := s.Call(ctx, s.SummarizerTool, map[string]any{
			"tool_output": chunk,
			"tool_name":   toolName,
			"max_length":  500,
		})
		if err != nil || res == nil || !res.Success {
			return "", 0, fmt.Errorf("chunk summary failed: %v", err)
		}
		summary, _ := res.Data["summary"].(string)
		if summary == "" {
			return "", 0, fmt.Errorf("chunk summary was empty")
		}
		summaries = append(summaries, summary)
	}

	if len(summaries) == 0 {
		return "", 0, fmt.Errorf("no chunk summaries produced")
	}

	merged, err := s.Call(ctx, s.SummarizerTool, map[string]any{
		"tool_output": strings.Join(summaries, "\n\n"),
		"tool_name":   toolName,
		"max_length":  3000,
		"focus_areas": "consolidate",
	})
	if err != nil || merged == nil || !merged.Success {
		return "", 0, fmt.Errorf("merge pass failed: %v", err)
	}
	final, _ := merged.Data["summary"].(string)
	if final == "" {
		return "", 0, fmt.Errorf("merge pass returned an empty summary")
	}
	return final, len(chunks), nil
}

// chunkText splits text into pieces no longer than chunkSize, preferring to
// break on a sentence boundary (.!?) within the last 100 characters of each
// chunk, exactly as the source's _chunk_output does.
func chunkText(text string, chunkSize int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			searchStart := start + chunkSize - 100
			if searchStart < start {
				searchStart = start
			}
			for i := end; i > searchStart; i-- {
				if isSentenceBoundary(text[i-1]) {
					end = i
					break
				}
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = end
	}
	return chunks
}

func isSentenceBoundary(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
