package client

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// Placeholder formats accepted by the server.
const (
	FormatBrackets     = "brackets"
	FormatAngles       = "angles"
	FormatDoubleAngles = "double_angles"
	FormatCurly        = "curly"
)

// Request is the body of Detect and Anonymize.  Nil and empty fields use
// the server configuration.
type Request struct {
	DocumentID           string   `json:"document_id,omitempty"`
	Text                 string   `json:"text"`
	Labels               []string `json:"labels,omitempty"`
	Threshold            *float64 `json:"threshold,omitempty"`
	Language             string   `json:"language,omitempty"`
	PlaceholderFormat    string   `json:"placeholder_format,omitempty"`
	ResolveEntities      *bool    `json:"resolve_entities,omitempty"`
	FuzzyMatching        *bool    `json:"fuzzy_matching,omitempty"`
	IncludeScores        *bool    `json:"include_scores,omitempty"`
	FilterFalsePositives *bool    `json:"filter_false_positives,omitempty"`
	// Persist stores the run's artifacts when the server has storage.
	Persist bool `json:"persist,omitempty"`
}

// Float64 and Bool help fill the optional request fields.
func Float64(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }

// Entity is one detected PII span.  Offsets are byte offsets into the
// submitted text.
type Entity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	TokenStart int     `json:"token_start"`
	TokenEnd   int     `json:"token_end"`
	Score      float64 `json:"score"`
}

// PipelineCounts reports how many spans each stage kept or removed.
type PipelineCounts struct {
	RawDetections          int `json:"raw_detections"`
	DuplicatesRemoved      int `json:"duplicates_removed"`
	FalsePositivesFiltered int `json:"false_positives_filtered"`
	TokenConversionDropped int `json:"token_conversion_dropped"`
	OverlapRemoved         int `json:"overlap_removed"`
	FinalEntities          int `json:"final_entities"`
	FuzzyMatches           int `json:"fuzzy_matches"`
}

// Statistics summarise a detection.
type Statistics struct {
	TotalEntities  int            `json:"total_entities"`
	TotalTokens    int            `json:"total_tokens"`
	TotalSentences int            `json:"total_sentences"`
	Labels         map[string]int `json:"labels"`
	Pipeline       PipelineCounts `json:"pipeline"`
}

// AnonymizationStatistics adds the anonymizer settings.
type AnonymizationStatistics struct {
	Statistics
	EntityResolution bool `json:"entity_resolution"`
	FuzzyMatching    bool `json:"fuzzy_matching"`
	FuzzyMatches     int  `json:"fuzzy_matches"`
	Placeholders     int  `json:"placeholders"`
}

// DetectionResponse is returned by Detect.
type DetectionResponse struct {
	Text               string     `json:"text"`
	Language           string     `json:"language"`
	EntitiesWithScores []Entity   `json:"entities_with_scores"`
	Statistics         Statistics `json:"statistics"`
}

// MappedEntity is the original text behind a placeholder.  Score is set
// only when scores were requested.
type MappedEntity struct {
	Text  string
	Score *float64
}

// UnmarshalJSON accepts a bare string or {"text", "score"}.
func (m *MappedEntity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MappedEntity{Text: s}
		return nil
	}
	var obj struct {
		Text  string   `json:"text"`
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*m = MappedEntity{Text: obj.Text, Score: obj.Score}
	return nil
}

// Artifact describes one stored run file.
type Artifact struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// AnonymizationResponse is returned by Anonymize.
type AnonymizationResponse struct {
	RunID          string                  `json:"run_id"`
	DocumentID     string                  `json:"document_id,omitempty"`
	Language       string                  `json:"language"`
	AnonymizedText string                  `json:"anonymized_text"`
	EntityMapping  map[string]MappedEntity `json:"entity_mapping"`
	Entities       []Entity                `json:"entities"`
	Statistics     AnonymizationStatistics `json:"statistics"`
	CreatedAt      time.Time               `json:"created_at"`
	Artifacts      []Artifact              `json:"artifacts,omitempty"`
}

// Detect runs detection only.
func (c *Client) Detect(ctx context.Context, req *Request) (*DetectionResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	var out DetectionResponse
	if err := c.post(ctx, APIPrefix+"/detect", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Anonymize replaces detected entities with placeholders.
func (c *Client) Anonymize(ctx context.Context, req *Request) (*AnonymizationResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	var out AnonymizationResponse
	if err := c.post(ctx, APIPrefix+"/anonymize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready reports whether every server dependency is healthy.
func (c *Client) Ready(ctx context.Context) error {
	return c.get(ctx, "/readyz", nil)
}

func validate(req *Request) error {
	if req == nil || req.Text == "" {
		return errors.New(errors.CodeInvalidParam, "text is required")
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		return errors.Newf(errors.CodeInvalidParam, "threshold %.3f outside [0,1]", *req.Threshold)
	}
	return nil
}

// RunsClient reads stored run artifacts.
type RunsClient struct {
	client *Client
}

// ArtifactList is the listing of one run.
type ArtifactList struct {
	RunID     string     `json:"run_id"`
	Artifacts []Artifact `json:"artifacts"`
}

// ListArtifacts lists the files stored for runID.
func (r *RunsClient) ListArtifacts(ctx context.Context, runID string) (*ArtifactList, error) {
	if runID == "" {
		return nil, errors.New(errors.CodeInvalidParam, "run id is required")
	}
	var out ArtifactList
	if err := r.client.get(ctx, APIPrefix+"/runs/"+url.PathEscape(runID)+"/artifacts", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetArtifact downloads one file, e.g. "anonymized.txt".
func (r *RunsClient) GetArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	if runID == "" || name == "" {
		return nil, errors.New(errors.CodeInvalidParam, "run id and artifact name are required")
	}
	var data []byte
	path := APIPrefix + "/runs/" + url.PathEscape(runID) + "/artifacts/" + url.PathEscape(name)
	if err := r.client.get(ctx, path, &data); err != nil {
		return nil, err
	}
	return data, nil
}

//Personal.AI order the ending
