package service

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/panday-team/panday/internal/models"
)

const (
	snippetMaxRunes = 200
	snippetEllipsis = "..."
	unknownTitle    = "Unknown"
	contextSep      = "\n---\n"
)

// SourceHit is a raw retrieval hit from either backend before normalization.
// NodeID is the backend's own node id column, if it has one.
type SourceHit struct {
	NodeID   *string
	Content  string
	Metadata map[string]any
	Score    float64
}

// NodeInfo is the node identity extracted from hit metadata.
type NodeInfo struct {
	NodeID   string
	NodeType string
	Title    string
}

// ExtractNodeInfo reads node_id (or id), type (or nodeType) and title from metadata.
// Missing values are returned empty.
func ExtractNodeInfo(metadata map[string]any) NodeInfo {
	return NodeInfo{
		NodeID:   firstMetaString(metadata, "node_id", "id"),
		NodeType: firstMetaString(metadata, "type", "nodeType"),
		Title:    firstMetaString(metadata, "title"),
	}
}

// BuildSourceDocument normalizes a hit into a SourceDocument. position is the hit's 0-based rank,
// used to name nodes that carry no id. The result depends only on its inputs.
func BuildSourceDocument(hit SourceHit, position int, roadmapID string) models.SourceDocument {
	info := ExtractNodeInfo(hit.Metadata)

	nodeID := info.NodeID
	if hit.NodeID != nil && *hit.NodeID != "" {
		nodeID = *hit.NodeID
	}

	if nodeID == "" {
		nodeID = "unknown-" + strconv.Itoa(position)
	}

	title := info.Title
	if title == "" {
		title = unknownTitle
	}

	return models.SourceDocument{
		NodeID:      nodeID,
		Title:       title,
		Score:       hit.Score,
		TextSnippet: Snippet(hit.Content),
		URL:         NodeURL(roadmapID, nodeID, info.NodeType),
		NodeType:    info.NodeType,
		RoadmapID:   roadmapID,
	}
}

// Snippet returns text unchanged when it has at most 200 characters, otherwise its first 200
// characters followed by "...". Characters are Unicode code points.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetMaxRunes {
		return text
	}

	n := 0
	for i := range text {
		if n == snippetMaxRunes {
			return text[:i] + snippetEllipsis
		}

		n++
	}

	return text
}

// NodeURL returns the deep link /roadmap?roadmap=<r>&node=<n>[&type=<t>] with query-escaped values.
func NodeURL(roadmapID, nodeID, nodeType string) string {
	var b strings.Builder

	b.WriteString("/roadmap?roadmap=")
	b.WriteString(url.QueryEscape(roadmapID))
	b.WriteString("&node=")
	b.WriteString(url.QueryEscape(nodeID))

	if nodeType != "" {
		b.WriteString("&type=")
		b.WriteString(url.QueryEscape(nodeType))
	}

	return b.String()
}

// ContextPart is one hit's contribution to the grounding context.
type ContextPart struct {
	Title string
	Text  string
}

// BuildContext renders "[title]\ntext\n" per part, joined by "\n---\n". No parts yields "".
func BuildContext(parts []ContextPart) string {
	rendered := make([]string, len(parts))
	for i, p := range parts {
		rendered[i] = "[" + p.Title + "]\n" + p.Text + "\n"
	}

	return strings.Join(rendered, contextSep)
}

// buildResponse converts ranked hits into a QueryResponse. hits must already be in descending score order.
func buildResponse(req models.QueryRequest, hits []SourceHit) models.QueryResponse {
	sources := make([]models.SourceDocument, len(hits))
	parts := make([]ContextPart, len(hits))

	for i, hit := range hits {
		sources[i] = BuildSourceDocument(hit, i, req.RoadmapID)
		parts[i] = ContextPart{Title: sources[i].Title, Text: hit.Content}
	}

	return models.QueryResponse{
		Query:     req.Query,
		RoadmapID: req.RoadmapID,
		Sources:   sources,
		Context:   BuildContext(parts),
	}
}

func firstMetaString(metadata map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := metaString(metadata[key]); s != "" {
			return s
		}
	}

	return ""
}

// metaString renders string and numeric metadata values; other types are ignored.
func metaString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}
