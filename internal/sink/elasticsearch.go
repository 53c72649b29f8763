package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"activity-export/internal/common/errors"
)

// DefaultBulkSize is used when a non-positive bulk size is configured.
const DefaultBulkSize = 500

// Elasticsearch indexes one document per row through the bulk API. Documents
// are keyed by run and activity id so a retried run overwrites its own rows.
type Elasticsearch struct {
	client   *elasticsearch.Client
	index    string
	runID    string
	bulkSize int
	columns  []string
	buf      bytes.Buffer
	pending  int
}

type activityDocument struct {
	RunID            string            `json:"runId"`
	ActivityID       string            `json:"activityId"`
	ActivityDate     string            `json:"activityDate"`
	ActivityTypeID   string            `json:"activityTypeId"`
	ActivityTypeName string            `json:"activityTypeName"`
	LeadID           string            `json:"leadId"`
	Fields           map[string]string `json:"fields"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

func NewElasticsearch(client *elasticsearch.Client, index, runID string, bulkSize int) *Elasticsearch {
	if bulkSize <= 0 {
		bulkSize = DefaultBulkSize
	}
	return &Elasticsearch{client: client, index: index, runID: runID, bulkSize: bulkSize}
}

func (s *Elasticsearch) WriteHeader(_ context.Context, columns []string) error {
	if len(columns) < baseColumns {
		return errors.NewSinkWriteError("elasticsearch", fmt.Errorf("expected at least %d columns, got %d", baseColumns, len(columns)))
	}
	s.columns = columns
	return nil
}

func (s *Elasticsearch) WriteRow(ctx context.Context, row []string) error {
	doc := activityDocument{
		RunID:            s.runID,
		ActivityID:       row[0],
		ActivityDate:     row[1],
		ActivityTypeID:   row[2],
		ActivityTypeName: row[3],
		LeadID:           row[4],
		Fields:           make(map[string]string, len(s.columns)-baseColumns),
	}
	for i := baseColumns; i < len(s.columns) && i < len(row); i++ {
		doc.Fields[s.columns[i]] = row[i]
	}

	meta := map[string]map[string]string{
		"index": {"_index": s.index, "_id": s.runID + "-" + row[0]},
	}
	enc := json.NewEncoder(&s.buf)
	if err := enc.Encode(meta); err != nil {
		return errors.NewSinkWriteError("elasticsearch", err)
	}
	if err := enc.Encode(doc); err != nil {
		return errors.NewSinkWriteError("elasticsearch", err)
	}
	s.pending++

	if s.pending >= s.bulkSize {
		return s.flush(ctx)
	}
	return nil
}

func (s *Elasticsearch) Close(ctx context.Context) error {
	return s.flush(ctx)
}

func (s *Elasticsearch) flush(ctx context.Context) error {
	if s.pending == 0 {
		return nil
	}
	body := bytes.NewReader(append([]byte(nil), s.buf.Bytes()...))
	s.buf.Reset()
	s.pending = 0

	res, err := s.client.Bulk(body, s.client.Bulk.WithContext(ctx))
	if err != nil {
		return errors.NewSinkWriteError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSinkWriteError("elasticsearch", fmt.Errorf("bulk request failed: %s", res.Status()))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return errors.NewSinkWriteError("elasticsearch", fmt.Errorf("decode bulk response: %w", err))
	}
	if parsed.Errors {
		for _, item := range parsed.Items {
			for _, result := range item {
				if result.Error != nil {
					return errors.NewSinkWriteError("elasticsearch", fmt.Errorf("%s: %s", result.Error.Type, result.Error.Reason))
				}
			}
		}
		return errors.NewSinkWriteError("elasticsearch", fmt.Errorf("bulk request reported errors"))
	}
	return nil
}
